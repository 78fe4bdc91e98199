package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adhoc_rdv/internal/rdv"
	"adhoc_rdv/internal/utils"

	"github.com/spf13/cobra"
)

var cliClient = &http.Client{Timeout: 10 * time.Second}

// nodeEndpoint resolves a route on the local node. --node overrides the
// address; the web path always comes from the config.
func nodeEndpoint(cmd *cobra.Command, nodeAddr, route string) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if nodeAddr == "" {
		nodeAddr = "http://127.0.0.1:" + cfg.Port
	}
	return utils.PeerEndpoint(nodeAddr, cfg.WebPath, route), nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func newPublishCmd() *cobra.Command {
	var (
		service    string
		param      string
		ttl        int
		mode       string
		peers      []string
		nodeAddr   string
		outputJSON bool
	)
	cmd := &cobra.Command{
		Use:   "publish [payload|-]",
		Short: "Originate a message through a running node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(service) == "" {
				return fmt.Errorf("--service is required")
			}
			if len(peers) > 0 && mode == "" {
				mode = rdv.ExplicitPeerSet.String()
			}
			if _, err := rdv.ParseDestinationMode(mode); err != nil {
				return err
			}

			var payload io.Reader = strings.NewReader("")
			if len(args) == 1 {
				if args[0] == "-" {
					payload = cmd.InOrStdin()
				} else {
					payload = strings.NewReader(args[0])
				}
			}

			q := url.Values{}
			q.Set("service", service)
			if param != "" {
				q.Set("param", param)
			}
			if cmd.Flags().Changed("ttl") {
				q.Set("ttl", strconv.Itoa(ttl))
			}
			if mode != "" {
				q.Set("mode", mode)
			}
			if len(peers) > 0 {
				q.Set("targets", strings.Join(peers, ","))
			}

			endpoint, err := nodeEndpoint(cmd, nodeAddr, "publish")
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint+"?"+q.Encode(), payload)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/octet-stream")
			resp, err := cliClient.Do(req)
			if err != nil {
				return err
			}
			body, err := readResponse(resp)
			if err != nil {
				return err
			}

			var view struct {
				HandedOff int    `json:"handed_off"`
				Mode      string `json:"mode"`
				TTL       int    `json:"ttl"`
			}
			if err := json.Unmarshal(body, &view); err != nil {
				return fmt.Errorf("decode publish response: %w", err)
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "handed_off: %d\nmode: %s\nttl: %d\n", view.HandedOff, view.Mode, view.TTL)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "Service name (required)")
	cmd.Flags().StringVar(&param, "param", "", "Service parameter")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Requested TTL (capped by the node's max_ttl)")
	cmd.Flags().StringVar(&mode, "mode", "", "Destination: all|group|neighbors|explicit")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "Explicit target peer id (repeatable)")
	cmd.Flags().StringVar(&nodeAddr, "node", "", "Node address (default http://127.0.0.1:<port>)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print as JSON")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var (
		nodeAddr   string
		outputJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the counters of a running node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := nodeEndpoint(cmd, nodeAddr, "stats")
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := cliClient.Do(req)
			if err != nil {
				return err
			}
			body, err := readResponse(resp)
			if err != nil {
				return err
			}

			var view struct {
				Node      string    `json:"node"`
				Version   string    `json:"version"`
				Neighbors int       `json:"neighbors"`
				Engine    rdv.Stats `json:"engine"`
			}
			if err := json.Unmarshal(body, &view); err != nil {
				return fmt.Errorf("decode stats: %w", err)
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			s := view.Engine
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"node: %s\nversion: %s\nneighbors: %d\noriginated: %d\nreceived: %d\nforwarded: %d\nsent: %d\nsend_failed: %d\nhandoff_rejected: %d\ndropped_ttl: %d\ndropped_duplicate: %d\nseen_entries: %d\n",
				view.Node, view.Version, view.Neighbors,
				s.Originated, s.Received, s.Forwarded, s.Sent, s.SendFailed, s.HandoffRejected,
				s.DroppedTTL, s.DroppedDuplicate, s.SeenEntries)
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeAddr, "node", "", "Node address (default http://127.0.0.1:<port>)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print as JSON")
	return cmd
}
