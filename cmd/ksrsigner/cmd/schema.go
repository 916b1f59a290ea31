package cmd

import (
	"fmt"

	"github.com/gookit/goutil/dump"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "inspect named signing schemas",
}

var schemaShowExport bool

var schemaShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "print the per-bundle publish/revoke/sign table a named schema builds for this instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		name := args[0]
		var slots []schema.Slot
		if override, ok := cfg.SchemaOverrides[name]; ok {
			slots = override
		} else {
			var err error
			slots, err = schema.Build(name, cfg.SchemaParams())
			if err != nil {
				return err
			}
			inventoryNames := make(map[string]bool)
			for _, e := range cfg.Inventory {
				inventoryNames[e.Identifier] = true
			}
			if err := schema.Validate(name, slots, inventoryNames); err != nil {
				if _, ok := err.(*errs.SchemaViolation); !ok {
					return err
				}
				dump.P("warning: " + err.Error())
			}
		}

		if schemaShowExport {
			// YAML-marshal the table in the same shape the config's
			// schema_overrides map expects, so it can be pasted
			// straight into a config file.
			out, err := yaml.Marshal(map[string][]schema.Slot{name: slots})
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		}

		dump.P(slots)
		return nil
	},
}

func init() {
	schemaShowCmd.Flags().BoolVar(&schemaShowExport, "export", false, "print the schema as YAML suitable for a schema_overrides config block")
	schemaCmd.AddCommand(schemaShowCmd)
}
