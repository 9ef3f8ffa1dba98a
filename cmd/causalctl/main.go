// Command causalctl runs causal queries against a graph file without a
// server. Graph files are YAML or JSON documents in the GraphSpec format.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/causal/internal/buildconfig"
	"github.com/Harshitk-cp/causal/internal/causal"
	"github.com/Harshitk-cp/causal/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type cliOptions struct {
	graphFile string
	output    string
	maxSize   int
	maxPaths  int
	combine   string
}

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &cliOptions{}
	root := &cobra.Command{
		Use:           "causalctl",
		Short:         "Query causal graphs from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&o.graphFile, "graph", "g", "", "Graph file (YAML or JSON)")
	root.PersistentFlags().StringVarP(&o.output, "output", "o", "text", "Output format: text, json or yaml")
	root.PersistentFlags().IntVar(&o.maxSize, "max-adjustment-size", causal.DefaultMaxAdjustmentSetSize, "Largest adjustment set tried")
	root.PersistentFlags().IntVar(&o.maxPaths, "max-paths", causal.DefaultMaxPaths, "Maximum number of paths enumerated")
	root.PersistentFlags().StringVar(&o.combine, "combine", string(causal.CombineSum), "How parent contributions are combined: sum or mean")

	root.AddCommand(
		validateCmd(o),
		orderCmd(o),
		pathsCmd(o),
		adjustCmd(o),
		effectCmd(o),
		interveneCmd(o),
		counterfactualCmd(o),
		ruleCmd(o),
		versionCmd(),
	)
	return root
}

func validateCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a graph file and report every violation",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, name, err := o.load()
			if err != nil {
				return err
			}
			return o.print(cmd, map[string]any{
				"name":      name,
				"valid":     true,
				"variables": g.Len(),
				"edges":     g.EdgeCount(),
			}, fmt.Sprintf("ok: %d variables, %d edges", g.Len(), g.EdgeCount()))
		},
	}
}

func orderCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the topological order of the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			order := g.TopologicalOrder()
			return o.print(cmd, order, strings.Join(order, " -> "))
		},
	}
}

func pathsCmd(o *cliOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List the directed causal paths between two variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			paths, err := causal.NewCounterfactualEngine(o.engineOptions()).ExplainPath(g, from, to)
			if err != nil {
				return err
			}
			lines := make([]string, len(paths))
			for i, p := range paths {
				lines[i] = p.Description
			}
			if len(lines) == 0 {
				lines = []string{fmt.Sprintf("no directed path from %s to %s", from, to)}
			}
			return o.print(cmd, paths, strings.Join(lines, "\n"))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Cause variable")
	cmd.Flags().StringVar(&to, "to", "", "Effect variable")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func adjustCmd(o *cliOptions) *cobra.Command {
	var treatment, outcome string
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Find a backdoor adjustment set",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			res, err := causal.NewDoCalculusEngine(o.engineOptions()).FindAdjustmentSet(g, treatment, outcome)
			if err != nil {
				return err
			}
			return o.print(cmd, res, fmt.Sprintf("adjust for {%s} (minimal: %t)", strings.Join(res.Set, ", "), res.Minimal))
		},
	}
	cmd.Flags().StringVar(&treatment, "treatment", "", "Treatment variable")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Outcome variable")
	_ = cmd.MarkFlagRequired("treatment")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func effectCmd(o *cliOptions) *cobra.Command {
	var (
		treatment, outcome string
		control, treated   float64
		adjust             []string
	)
	cmd := &cobra.Command{
		Use:   "effect",
		Short: "Estimate the causal effect of a treatment on an outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			q := causal.EffectQuery{Treatment: treatment, Outcome: outcome, Control: &control, Treated: &treated}
			if cmd.Flags().Changed("adjust") {
				q.Adjustment = adjust
			}
			est, err := causal.NewDoCalculusEngine(o.engineOptions()).EstimateEffect(g, q)
			if err != nil {
				return err
			}
			return o.print(cmd, est, est.Explanation)
		},
	}
	cmd.Flags().StringVar(&treatment, "treatment", "", "Treatment variable")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Outcome variable")
	cmd.Flags().Float64Var(&control, "control", 0, "Control value of the treatment")
	cmd.Flags().Float64Var(&treated, "treated", 1, "Treated value of the treatment")
	cmd.Flags().StringSliceVar(&adjust, "adjust", nil, "Explicit adjustment set (comma separated)")
	_ = cmd.MarkFlagRequired("treatment")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func interveneCmd(o *cliOptions) *cobra.Command {
	var (
		set    []string
		target string
	)
	cmd := &cobra.Command{
		Use:   "intervene",
		Short: "Predict a target variable under do(...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			intervention, err := parseAssignment(set)
			if err != nil {
				return err
			}
			res, err := causal.NewDoCalculusEngine(o.engineOptions()).Intervene(g, intervention, target)
			if err != nil {
				return err
			}
			return o.print(cmd, res, res.Explanation)
		},
	}
	cmd.Flags().StringSliceVar(&set, "set", nil, "Interventions as VAR=VALUE (comma separated or repeated)")
	cmd.Flags().StringVar(&target, "target", "", "Target variable")
	_ = cmd.MarkFlagRequired("set")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func counterfactualCmd(o *cliOptions) *cobra.Command {
	var (
		evidence  []string
		scenarios []string
		outcome   string
	)
	cmd := &cobra.Command{
		Use:   "counterfactual",
		Short: "Compare hypothetical scenarios against observed evidence",
		Example: `  causalctl counterfactual -g smoking.yaml --evidence Smoking=1,Cancer=2.5 \
    --scenario quit:Smoking=0 --scenario Smoking=2 --outcome Cancer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			ev, err := parseAssignment(evidence)
			if err != nil {
				return err
			}
			list := make([]domain.Scenario, len(scenarios))
			for i, s := range scenarios {
				if list[i], err = parseScenario(s); err != nil {
					return err
				}
			}
			results, err := causal.NewCounterfactualEngine(o.engineOptions()).
				CompareScenarios(cmd.Context(), g, domain.Evidence(ev), list, outcome)
			if err != nil {
				return err
			}
			lines := make([]string, len(results))
			for i, r := range results {
				lines[i] = fmt.Sprintf("%s: %s", r.Label, r.Explanation)
			}
			return o.print(cmd, results, strings.Join(lines, "\n"))
		},
	}
	cmd.Flags().StringSliceVar(&evidence, "evidence", nil, "Observed values as VAR=VALUE")
	cmd.Flags().StringArrayVar(&scenarios, "scenario", nil, "Scenario as [LABEL:]VAR=VALUE[,VAR=VALUE...] (repeatable)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Outcome variable")
	_ = cmd.MarkFlagRequired("scenario")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func ruleCmd(o *cliOptions) *cobra.Command {
	var (
		rule int
		q    causal.RuleQuery
	)
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Check the graphical condition of a do-calculus rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := o.load()
			if err != nil {
				return err
			}
			holds, err := causal.NewDoCalculusEngine(o.engineOptions()).CheckRule(g, causal.Rule(rule), q)
			if err != nil {
				return err
			}
			return o.print(cmd, map[string]any{"rule": rule, "holds": holds},
				fmt.Sprintf("rule %d holds: %t", rule, holds))
		},
	}
	cmd.Flags().IntVar(&rule, "rule", 0, "Rule number (1, 2 or 3)")
	cmd.Flags().StringSliceVar(&q.Y, "y", nil, "Outcome variables")
	cmd.Flags().StringSliceVar(&q.X, "x", nil, "Intervened variables")
	cmd.Flags().StringSliceVar(&q.Z, "z", nil, "Variables the rule inserts, deletes or exchanges")
	cmd.Flags().StringSliceVar(&q.W, "w", nil, "Conditioning variables")
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildconfig.BuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "causalctl %s (commit %s, built %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion)
			return nil
		},
	}
}

// load reads and builds the graph named by --graph.
func (o *cliOptions) load() (*causal.Graph, string, error) {
	if o.graphFile == "" {
		return nil, "", fmt.Errorf("--graph is required")
	}
	data, err := os.ReadFile(o.graphFile)
	if err != nil {
		return nil, "", err
	}
	var spec domain.GraphSpec
	// JSON documents are valid YAML.
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", o.graphFile, err)
	}
	g, err := causal.NewBuilder().Build(spec)
	if err != nil {
		return nil, "", err
	}
	return g, spec.Name, nil
}

func (o *cliOptions) engineOptions() causal.Options {
	opts := causal.DefaultOptions()
	opts.MaxAdjustmentSetSize = o.maxSize
	opts.MaxPaths = o.maxPaths
	if causal.ValidCombineMode(o.combine) {
		opts.Combine = causal.CombineMode(o.combine)
	}
	return opts
}

func (o *cliOptions) print(cmd *cobra.Command, v any, text string) error {
	w := cmd.OutOrStdout()
	switch o.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so the output uses the JSON field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	case "text", "":
		_, err := fmt.Fprintln(w, text)
		return err
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}

func parseAssignment(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected VAR=VALUE", p)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", p, err)
		}
		out[k] = f
	}
	return out, nil
}

func parseScenario(s string) (domain.Scenario, error) {
	var sc domain.Scenario
	body := s
	if label, rest, ok := strings.Cut(s, ":"); ok {
		sc.Label = strings.TrimSpace(label)
		body = rest
	}
	a, err := parseAssignment(strings.Split(body, ","))
	if err != nil {
		return sc, err
	}
	sc.Assignment = a
	return sc, nil
}
