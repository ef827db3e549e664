// Copyright © 2023 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/n0ot/relayhub/pkg/server"
)

const defaultPort = "6837"

var (
	statsPort              string
	skipTLSVerification    bool
	statsServerCertificate string
	statsPassword          string
	promptForPassword      bool
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats [host]",
	Short: "Print stats from a relayhubd server",
	Long: `stats queries a relayhubd server for running stats.

If the host is omitted, the local relayhubd server will be queried.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := "127.0.0.1"
		if len(args) > 0 {
			host = args[0]
			if disableTLS {
				fmt.Fprintln(os.Stderr, "Warning: TLS is disabled. All traffic including your stats password will be sent in the clear.")
			} else if skipTLSVerification {
				fmt.Fprintln(os.Stderr, "Warning: skipping TLS verification is insecure.")
			}
		} else {
			// Use the options from the local server's configuration.
			if _, port, err := net.SplitHostPort(viper.GetString("server.bind")); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot determine local server port from config; using \"%s\"\n", statsPort)
			} else {
				statsPort = port
			}
			disableTLS = !viper.GetBool("tls.useTls")
			skipTLSVerification = true
			statsPassword = viper.GetString("server.statsPassword")
			if !disableTLS {
				fmt.Fprintln(os.Stderr, "Skipping TLS verification for local server query")
			}
		}

		if promptForPassword {
			fmt.Printf("Password: ")
			pass, err := gopass.GetPasswd()
			if err != nil {
				return err
			}
			statsPassword = string(pass)
		}
		if statsPassword == "" {
			statsPassword = os.Getenv("RELAYHUBD_STATS_PASSWORD")
		}
		if statsPassword == "" {
			return errors.New("A stats password is required")
		}

		client, err := statsClient()
		if err != nil {
			return err
		}
		stats, err := getStats(client, statsURL(host), statsPassword)
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), host, stats)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsPort, "port", "P", defaultPort, "port of the server to query stats for")
	statsCmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "disable connecting over TLS")
	statsCmd.Flags().BoolVarP(&skipTLSVerification, "no-tls-verify", "n", false, "skip TLS verification\n    This is insecure, an attacker can get your password, and you should only use this for testing")
	statsCmd.Flags().StringVarP(&statsServerCertificate, "server-certificate", "s", "", "file containing the PEM encoded certificate to use for server verification, instead of the system's certificate store")
	statsCmd.Flags().BoolVarP(&promptForPassword, "prompt-for-password", "p", false, "prompt for the server's stats password\n    If unset, the password is the same as the local server's.")

	viper.SetDefault("server.statsPassword", "")
}

func statsURL(host string) string {
	scheme := "https"
	if disableTLS {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, statsPort),
		Path:   "/stats",
	}
	return u.String()
}

func statsClient() (*http.Client, error) {
	var certPool *x509.CertPool
	if statsServerCertificate != "" {
		cert, err := os.ReadFile(statsServerCertificate)
		if err != nil {
			return nil, errors.Wrap(err, "Open server certificate")
		}
		certPool = x509.NewCertPool()
		certPool.AppendCertsFromPEM(cert)
	}

	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: skipTLSVerification,
				RootCAs:            certPool,
			},
		},
	}, nil
}

// getStats requests stats from the server at statsURL.
func getStats(client *http.Client, statsURL, password string) (server.Stats, error) {
	req, err := http.NewRequest(http.MethodGet, statsURL, nil)
	if err != nil {
		return server.Stats{}, errors.Wrap(err, "Request stats")
	}
	req.Header.Set(server.StatsPasswordHeader, password)

	resp, err := client.Do(req)
	if err != nil {
		return server.Stats{}, errors.Wrap(err, "Connect to relayhubd server")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return server.Stats{}, errors.Wrap(err, "Get stats response from server")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp server.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
			return server.Stats{}, errors.Errorf("Server returned %s", resp.Status)
		}
		return server.Stats{}, errors.Errorf("Server returned an error: %s", errResp.Error)
	}

	var statsResp server.StatsResponse
	if err := json.Unmarshal(body, &statsResp); err != nil {
		return server.Stats{}, errors.Wrap(err, "Get stats response from server")
	}
	return statsResp.Stats, nil
}

func printStats(w io.Writer, host string, stats server.Stats) {
	// Don't display the default port in the output.
	friendlyAddr := host
	if statsPort != defaultPort {
		friendlyAddr = net.JoinHostPort(host, statsPort)
	}
	fmt.Fprintf(w, `Stats for %s:
Uptime: %s
Number of groups: %d

Number of connections: %d
Max connections: %d on %s

Methods: %v
`, friendlyAddr, stats.Uptime.Round(time.Second),
		stats.NumGroups,
		stats.NumConnections,
		stats.MaxConnections, stats.MaxConnectionsTime.Format(time.RFC1123),
		stats.Methods)
}
