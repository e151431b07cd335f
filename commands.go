package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stega_backend/api"
	"stega_backend/core"
)

const usage = `Usage: stega-server [command]

Without a command the watermark server starts in the foreground.

Commands:
  version                   Print version information
  hash-token [token [cost]] Print the bcrypt hash to use as API_TOKEN_HASH
                            (reads the token from stdin when omitted)
  install | uninstall       Register or remove the system service
  start | stop | restart    Control the installed service
  status                    Show the installed service status
  help                      Show this message
`

// runCommand handles a command-line subcommand. It reports false when
// args name no command and the server should start.
func runCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) (bool, int) {
	if len(args) == 0 {
		return false, core.ExitCodeSuccess
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "stega-server %s\n", core.GetVersionInfo())
		return true, core.ExitCodeSuccess

	case "help", "--help", "-h":
		fmt.Fprint(stdout, usage)
		return true, core.ExitCodeSuccess

	case "hash-token":
		return true, hashTokenCommand(args[1:], stdin, stdout, stderr)

	case "install", "uninstall", "start", "stop", "restart", "status":
		msg, err := HandleServiceCommand(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return true, core.ExitCodeError
		}
		fmt.Fprintln(stdout, msg)
		return true, core.ExitCodeSuccess

	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s", args[0], usage)
		return true, core.ExitCodeConfig
	}
}

func hashTokenCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(stderr, "Error: read token: %v\n", err)
			return core.ExitCodeError
		}
		token = strings.TrimSpace(line)
	}

	cost := api.DefaultTokenCost
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < api.MinTokenCost {
			fmt.Fprintf(stderr, "Error: cost must be an integer >= %d\n", api.MinTokenCost)
			return core.ExitCodeConfig
		}
		cost = n
	}

	hash, err := api.HashTokenWithCost(token, cost)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return core.ExitCodeConfig
	}
	fmt.Fprintln(stdout, hash)
	return core.ExitCodeSuccess
}
