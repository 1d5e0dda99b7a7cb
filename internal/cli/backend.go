package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnv-me/webbnv/internal/agentrt"
	"github.com/bnv-me/webbnv/internal/wardrobe"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "landing",
		Short: "Print the BNV landing data",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, _, err := newBackend()
			if err != nil {
				return err
			}
			data, err := backend.Landing(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	})

	RootCmd.AddCommand(&cobra.Command{
		Use:   "register-user",
		Short: "Create the ME:ID user for the configured agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, _, err := newBackend()
			if err != nil {
				return err
			}
			character, err := agentrt.LoadCharacter(cfg.Agent.CharacterFile, cfg.Agent.Name)
			if err != nil {
				return err
			}
			agentID, err := agentrt.ResolveAgentID(cfg.Agent.ID, character.Name)
			if err != nil {
				return err
			}
			data, err := backend.CreateUser(cmd.Context(), character.Name, agentID.String())
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	})

	RootCmd.AddCommand(&cobra.Command{
		Use:   "sync-wearables",
		Short: "Fetch the wearable catalog and store it in agent memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			backend, _, err := newBackend()
			if err != nil {
				return err
			}
			deps, err := buildHost(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.Close()

			agentID := deps.runtime.AgentID()
			resp, err := backend.Wearables(cmd.Context(), agentID.String())
			if err != nil {
				return fmt.Errorf("fetching wearables: %w", err)
			}
			stats, err := wardrobe.NewIngester(deps.memory, agentID, nil).Ingest(cmd.Context(), resp)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var pretty any
		if err := json.Unmarshal(raw, &pretty); err == nil {
			v = pretty
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
