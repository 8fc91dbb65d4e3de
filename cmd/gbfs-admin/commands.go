package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gbfs-sync/internal/metrics"
)

func render(w io.Writer, v any, text func()) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove entities, index entries and continuity of providers no longer configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		release, err := claimWriter(cmd.Context(), sess)
		if err != nil {
			return err
		}
		defer release()
		removed, err := sess.engine.Cleaner.CleanupUnconfigured(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]any{"removed": removed}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d provider(s)\n", len(removed))
			for _, id := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
			}
		})
	},
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show cached entity and index entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		counts := map[string]map[string]int{
			metrics.EntityVehicle: {"cache": sess.stores.Vehicles.Count(ctx), "index": len(sess.stores.VehicleIndex.All(ctx))},
			metrics.EntityStation: {"cache": sess.stores.Stations.Count(ctx), "index": len(sess.stores.StationIndex.All(ctx))},
		}
		return render(cmd.OutOrStdout(), counts, func() {
			for _, kind := range []string{metrics.EntityVehicle, metrics.EntityStation} {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s cache=%d index=%d\n", kind, counts[kind]["cache"], counts[kind]["index"])
			}
		})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Inspect or remove index entries whose entity is no longer cached",
}

var orphansListCmd = &cobra.Command{
	Use:       "list <vehicle|station>",
	Short:     "List orphaned index entries",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{metrics.EntityVehicle, metrics.EntityStation},
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := sess.engine.Cleaner.FindOrphans(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), ids, func() {
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned %s index entries\n", len(ids), args[0])
		})
	},
}

var orphansRemoveCmd = &cobra.Command{
	Use:       "remove <vehicle|station>",
	Short:     "Remove orphaned index entries",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{metrics.EntityVehicle, metrics.EntityStation},
	RunE: func(cmd *cobra.Command, args []string) error {
		release, err := claimWriter(cmd.Context(), sess)
		if err != nil {
			return err
		}
		defer release()
		ids, err := sess.engine.Cleaner.RemoveOrphans(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]any{"removed": ids}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned %s index entries\n", len(ids), args[0])
		})
	},
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Inspect configured providers or clear one provider's data",
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cs := sess.registry.All()
		return render(cmd.OutOrStdout(), cs, func() {
			for _, c := range cs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-6s enabled=%t exclude=%v\n", c.SystemID, c.Codespace, c.Enabled, c.ExcludeFeeds)
			}
		})
	},
}

var deleteConfig bool

var providerRemoveCmd = &cobra.Command{
	Use:   "remove <systemId>",
	Short: "Clear all entities, index entries and continuity of a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		release, err := claimWriter(cmd.Context(), sess)
		if err != nil {
			return err
		}
		defer release()
		id := args[0]
		deleted := false
		if deleteConfig {
			if sess.providers.PG == nil {
				return fmt.Errorf("--delete-config requires PROVIDERS_SOURCE=postgres")
			}
			ok, err := sess.providers.PG.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			deleted = ok
		}
		if err := sess.engine.Cleaner.CleanupProvider(cmd.Context(), id); err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]any{"provider": id, "configDeleted": deleted}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s (config deleted: %t)\n", id, deleted)
		})
	},
}

func init() {
	orphansCmd.AddCommand(orphansListCmd, orphansRemoveCmd)
	providerRemoveCmd.Flags().BoolVar(&deleteConfig, "delete-config", false, "also delete the provider row from postgres")
	providerCmd.AddCommand(providerListCmd, providerRemoveCmd)
}
