package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nerrad567/felshare-bridge/internal/cloud"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/config"
)

// devicesCommand logs in with the configured account and prints its
// devices. Only the cloud settings are required.
func devicesCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("devices", stderr)
	asJSON := fs.Bool("json", false, "print the raw device records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadUnvalidated(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if errs := cfg.ValidateCloud(); len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	client, err := cloud.New(cloud.Config{
		APIBase:   cfg.Cloud.APIBase,
		Email:     cfg.Cloud.Email,
		Password:  cfg.Cloud.Password,
		UserAgent: "felshare-bridge/" + version,
	})
	if err != nil {
		return fmt.Errorf("creating cloud client: %w", err)
	}

	devices, err := listDevices(ctx, client)
	if err != nil {
		return err
	}
	return printDevices(stdout, devices, *asJSON)
}

func listDevices(ctx context.Context, client *cloud.Client) ([]cloud.Device, error) {
	token, err := client.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	devices, err := client.ListDevices(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

func printDevices(w io.Writer, devices []cloud.Device, asJSON bool) error {
	if asJSON {
		raw := make([]map[string]any, 0, len(devices))
		for _, d := range devices {
			raw = append(raw, d.Raw)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "no devices on this account")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // column padding
	fmt.Fprintln(tw, "DEVICE ID\tNAME\tMODEL")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, orDash(d.Name), orDash(d.Model))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
