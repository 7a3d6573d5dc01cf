package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/infrastructure/logging"
	"github.com/asakaida/placement/internal/policies"
	"github.com/asakaida/placement/internal/services/parser"
	"github.com/asakaida/placement/internal/services/policy"
)

// errDenied makes the process exit non-zero when a check is denied
var errDenied = errors.New("denied")

type options struct {
	policyFile   string
	enforceScope bool
	verbose      bool
}

func main() {
	os.Exit(runCommand(newRootCmd(), os.Stderr))
}

// runCommand executes cmd and returns the process exit code. A denied
// check has already printed its verdict, so only other errors are reported.
func runCommand(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	if !errors.Is(err, errDenied) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "policy",
		Short:         "Inspect and evaluate placement policy rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.policyFile, "policy-file", "f", "", "YAML or JSON policy overrides")
	cmd.PersistentFlags().BoolVar(&opts.enforceScope, "enforce-scope", false, "Reject tokens of the wrong scope")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log policy decisions")

	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newSampleCmd())
	cmd.AddCommand(newCheckCmd(opts))
	return cmd
}

func newEnforcer(opts *options) (*policy.Enforcer, error) {
	logger, err := logging.NewCLI(os.Getenv("ENV"), opts.verbose)
	if err != nil {
		return nil, err
	}

	e, err := policy.NewEnforcer(policy.Options{EnforceScope: opts.enforceScope, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := e.RegisterDefaults(policies.ListRules()); err != nil {
		return nil, err
	}
	if opts.policyFile != "" {
		if err := e.LoadFile(opts.policyFile); err != nil {
			return nil, err
		}
	}
	return e, nil
}

type ruleOutput struct {
	Name        string   `yaml:"name"`
	CheckStr    string   `yaml:"check_str"`
	Description string   `yaml:"description,omitempty"`
	ScopeTypes  []string `yaml:"scope_types,omitempty"`
	Overridden  bool     `yaml:"overridden"`
}

func newListCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the effective rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnforcer(opts)
			if err != nil {
				return err
			}

			overrides := e.Overrides()
			var rules []ruleOutput
			for _, r := range e.Rules() {
				_, overridden := overrides[r.Name]
				rules = append(rules, ruleOutput{
					Name:        r.Name,
					CheckStr:    r.CheckStr,
					Description: r.Description,
					ScopeTypes:  r.ScopeTypes,
					Overridden:  overridden,
				})
			}

			switch output {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(rules); err != nil {
					return err
				}
				return enc.Close()
			case "table":
				return writeTable(cmd.OutOrStdout(), rules)
			default:
				return fmt.Errorf("unknown output format %q (want table or yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")
	return cmd
}

func writeTable(w io.Writer, rules []ruleOutput) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHECK\tSCOPE\tOVERRIDDEN")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", r.Name, r.CheckStr, strings.Join(r.ScopeTypes, ","), r.Overridden)
	}
	return tw.Flush()
}

func newSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print a sample policy file with every default commented out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, err := parser.NewGenerator().GenerateSample(policies.ListRules())
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), sample)
			return err
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	var (
		checkStr string
		creds    entities.Credentials
		targets  []string
	)

	cmd := &cobra.Command{
		Use:   "check [rule]",
		Short: "Evaluate a rule, or a check string, for the given credentials",
		Example: `  policy check admin_api --role admin --system-scope all
  policy check --check 'project_id:%(project_id)s' --project-id p1 --target project_id=p1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (checkStr == "") {
				return fmt.Errorf("give either a rule name or --check")
			}

			target, err := parseTarget(targets)
			if err != nil {
				return err
			}

			e, err := newEnforcer(opts)
			if err != nil {
				return err
			}

			var (
				allowed bool
				subject string
			)
			if checkStr != "" {
				subject = checkStr
				allowed, err = e.EnforceCheck(cmd.Context(), checkStr, target, &creds)
			} else {
				subject = args[0]
				allowed, err = e.Enforce(cmd.Context(), args[0], target, &creds)
			}
			if err != nil {
				return err
			}

			if !allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: denied\n", subject)
				return errDenied
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: allowed\n", subject)
			return nil
		},
	}

	cmd.Flags().StringVar(&checkStr, "check", "", "Check string to evaluate instead of a rule")
	cmd.Flags().StringVar(&creds.UserID, "user-id", "", "Credential user ID")
	cmd.Flags().StringVar(&creds.ProjectID, "project-id", "", "Credential project ID")
	cmd.Flags().StringVar(&creds.DomainID, "domain-id", "", "Credential domain ID")
	cmd.Flags().StringVar(&creds.SystemScope, "system-scope", "", "Credential system scope (all)")
	cmd.Flags().BoolVar(&creds.IsAdminProject, "admin-project", false, "Credential is for the admin project")
	cmd.Flags().StringSliceVar(&creds.Roles, "role", nil, "Credential role (repeatable)")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "Target attribute as key=value (repeatable)")
	return cmd
}

func parseTarget(pairs []string) (entities.Target, error) {
	target := entities.Target{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid target %q (want key=value)", pair)
		}
		target[key] = value
	}
	return target, nil
}
