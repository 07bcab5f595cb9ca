// Command csms-ctl is a standalone CLI client for the csms-gateway REST/RPC surface.
// Grounded on the teacher's cmd/argon-ctl/main.go standalone-client shape, adapted from a
// Unix-socket IPC transport to plain HTTP since the gateway's operator surface is REST.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := "http://localhost:8887"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-url" || args[0] == "--url" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -url requires an argument\n")
			os.Exit(1)
		}
		baseURL = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 15 * time.Second}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return

	case "list":
		active := ""
		if len(args) > 1 {
			active = "?active=" + args[1]
		}
		if err := doRequest(client, http.MethodGet, baseURL+"/get-all-charge-points"+active, nil); err != nil {
			fail(err)
		}

	case "settings":
		requireID(args, "settings")
		if err := doRequest(client, http.MethodGet, baseURL+"/charge-points/"+args[1]+"/settings", nil); err != nil {
			fail(err)
		}

	case "configuration", "config":
		requireID(args, "configuration")
		if err := doRequest(client, http.MethodGet, baseURL+"/charge-points/"+args[1]+"/configuration", nil); err != nil {
			fail(err)
		}

	case "enable":
		requireID(args, "enable")
		if err := doRequest(client, http.MethodPost, baseURL+"/charge-points/"+args[1]+"/enable", nil); err != nil {
			fail(err)
		}

	case "disable":
		requireID(args, "disable")
		if err := doRequest(client, http.MethodPost, baseURL+"/charge-points/"+args[1]+"/disable", nil); err != nil {
			fail(err)
		}

	case "start":
		requireID(args, "start")
		if err := doRequest(client, http.MethodPost, baseURL+"/charge-points/"+args[1]+"/start", nil); err != nil {
			fail(err)
		}

	case "stop":
		requireID(args, "stop")
		if err := doRequest(client, http.MethodPost, baseURL+"/charge-points/"+args[1]+"/stop", nil); err != nil {
			fail(err)
		}

	case "charging-current":
		requireID(args, "charging-current")
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "error: charging-current requires an amps value\n")
			os.Exit(1)
		}
		if err := doRequest(client, http.MethodPost, baseURL+"/charge-points/"+args[1]+"/charging-current", bytes.NewBufferString(args[2])); err != nil {
			fail(err)
		}

	case "set-alias":
		requireID(args, "set-alias")
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "error: set-alias requires an alias value\n")
			os.Exit(1)
		}
		body, _ := json.Marshal(map[string]string{"alias": args[2]})
		if err := doRequest(client, http.MethodPut, baseURL+"/charge-points/"+args[1]+"/set-alias", bytes.NewReader(body)); err != nil {
			fail(err)
		}

	case "command":
		requireID(args, "command")
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "error: command requires an action name\n")
			os.Exit(1)
		}
		body := map[string]any{"action": args[2], "parameters": map[string]any{}}
		if len(args) > 3 {
			params := map[string]any{}
			if err := json.Unmarshal([]byte(args[3]), &params); err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid parameters json: %v\n", err)
				os.Exit(1)
			}
			body["parameters"] = params
		}
		b, _ := json.Marshal(body)
		if err := doRequest(client, http.MethodPost, baseURL+"/charge-points/"+args[1]+"/commands", bytes.NewReader(b)); err != nil {
			fail(err)
		}

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func requireID(args []string, cmd string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "error: %s requires a charge point id\n", cmd)
		os.Exit(1)
	}
}

func doRequest(client *http.Client, method, url string, body io.Reader) error {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `csms-ctl - Control a csms-gateway instance over its REST surface

Usage:
  csms-ctl [options] <command> [args]

Options:
  -url URL                Gateway base URL (default: http://localhost:8887)

Commands:
  list [true|false]               List connected charge points, optionally filtered by active
  settings <id>                   Show a charge point's settings
  configuration <id>              Fetch assembled configuration
  enable <id>                     Enable a charge point
  disable <id>                    Disable a charge point
  start <id>                      Remote-start a transaction
  stop <id>                       Remote-stop a transaction
  charging-current <id> <amps>    Set max charging current
  set-alias <id> <alias>          Persist a display alias
  command <id> <action> [params]  Send an arbitrary OCPP command (params as JSON object)
  help, -h, --help                Show this help message

Examples:
  csms-ctl list true
  csms-ctl start CP-042
  csms-ctl command CP-042 RemoteStopTransaction '{"transactionId":1}'
`)
}
