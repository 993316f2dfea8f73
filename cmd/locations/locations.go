// Package locations implements the gym location registry subcommand.
package locations

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/datastore"
)

// Command creates the locations subcommand with add/list/remove verbs.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage the gym location registry",
	}

	cmd.AddCommand(
		addCommand(settings),
		listCommand(settings),
		removeCommand(settings),
	)
	return cmd
}

func openStore(settings *conf.Settings) (datastore.Interface, error) {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}
	return store, nil
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var radius float64

	cmd := &cobra.Command{
		Use:   "add <name> <latitude> <longitude>",
		Short: "Register a gym location",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q: %w", args[1], err)
			}
			lon, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q: %w", args[2], err)
			}

			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveLocation(&datastore.Location{
				Name:      args[0],
				Latitude:  lat,
				Longitude: lon,
				RadiusM:   radius,
			}); err != nil {
				return err
			}

			cmd.Printf("registered %q at %.5f,%.5f\n", args[0], lat, lon)
			return nil
		},
	}

	cmd.Flags().Float64Var(&radius, "radius", 0, "Match radius in meters (0 uses the configured default)")
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered gym locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			locations, err := store.GetAllLocations()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLATITUDE\tLONGITUDE\tRADIUS")
			for _, l := range locations {
				radius := fmt.Sprintf("%.0fm", l.RadiusM)
				if l.RadiusM == 0 {
					radius = "default"
				}
				fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%s\n", l.Name, l.Latitude, l.Longitude, radius)
			}
			return w.Flush()
		},
	}
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a registered gym location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteLocation(args[0]); err != nil {
				return err
			}
			cmd.Printf("removed %q\n", args[0])
			return nil
		},
	}
}
