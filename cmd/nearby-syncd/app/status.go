package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/stacklok/nearby-sync/internal/config"
	internalversions "github.com/stacklok/nearby-sync/internal/versions"
	"github.com/stacklok/nearby-sync/pkg/versions"
)

const statusRequestTimeout = 5 * time.Second

// statusReport holds the raw JSON documents served by a running daemon
type statusReport struct {
	version     []byte
	advertising []byte
	sync        []byte
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			address, err := cmd.Flags().GetString("address")
			if err != nil {
				return err
			}
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusRequestTimeout)
			defer cancel()

			report, err := fetchStatus(ctx, http.DefaultClient, baseURL(address))
			if err != nil {
				return err
			}

			if format == "json" {
				_, err := fmt.Fprintf(cmd.OutOrStdout(),
					`{"version":%s,"advertising":%s,"sync":%s}`+"\n",
					report.version, report.advertising, report.sync)
				return err
			}

			clientVersion := versions.GetVersionInfo().Version
			daemonVersion := gjson.GetBytes(report.version, "version").String()
			skew := internalversions.CompareBuilds(clientVersion, daemonVersion)
			if warning := skew.Warning(clientVersion, daemonVersion); warning != "" {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
			}
			return renderStatus(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().String("address", config.DefaultAPIAddress, "Address of the daemon's control API")
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func baseURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimSuffix(address, "/")
	}
	if strings.HasPrefix(address, ":") {
		address = "127.0.0.1" + address
	}
	return "http://" + address
}

func fetchStatus(ctx context.Context, client *http.Client, base string) (*statusReport, error) {
	version, err := getJSON(ctx, client, base+"/version")
	if err != nil {
		return nil, err
	}
	advertising, err := getJSON(ctx, client, base+"/v1/advertising")
	if err != nil {
		return nil, err
	}
	sync, err := getJSON(ctx, client, base+"/v1/sync")
	if err != nil {
		return nil, err
	}
	return &statusReport{version: version, advertising: advertising, sync: sync}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("GET %s: %s", url, msg)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("GET %s: invalid JSON response", url)
	}
	return body, nil
}

func renderStatus(w io.Writer, report *statusReport) error {
	adv := gjson.ParseBytes(report.advertising)
	sync := gjson.ParseBytes(report.sync)

	state := "not advertising"
	if adv.Get("session.active").Bool() {
		state = fmt.Sprintf("advertising (power %s, data %s)",
			adv.Get("session.powerLevel").String(), adv.Get("session.dataUsage").String())
	}

	rows := [][]string{
		{"Daemon version", gjson.GetBytes(report.version, "version").String()},
		{"Device", fmt.Sprintf("%s (%s)", sync.Get("device.name").String(), sync.Get("device.id").String())},
		{"Advertising", state},
		{"Reason", adv.Get("reason").String()},
		{"Visibility", adv.Get("conditions.visibility").String()},
		{"Connection", adv.Get("conditions.connection").String()},
		{"Receive surfaces", fmt.Sprintf("%d foreground, %d background",
			adv.Get("conditions.foregroundSurfaces").Int(), adv.Get("conditions.backgroundSurfaces").Int())},
		{"Allowed contacts", sync.Get("contacts.allowlistSize").String()},
		{"Upload", sync.Get("contacts.uploadState").String()},
		{"Download failures", sync.Get("contacts.download.consecutiveFailures").String()},
		{"Certificates", fmt.Sprintf("%d private, %d public",
			sync.Get("certificates.privateCertificates").Int(), sync.Get("certificates.publicCertificates").Int())},
	}
	if last := sync.Get("contacts.download.lastSuccess"); last.Exists() {
		rows = append(rows, []string{"Last download", last.String()})
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
