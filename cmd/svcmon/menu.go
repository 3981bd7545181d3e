package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const menuText = `
=== Main Menu ===
1. Display All Services and Their Status
2. Search Service by Name
3. Filter Services by Status
4. Start a Service
5. Stop a Service
6. Restart a Service
7. Detect Failed Services
8. Process Failed Services Queue
9. View Service Logs
10. Monitor Services
11. Show Processes
0. Exit
Enter your choice: `

var statusChoices = []string{"ACTIVE", "INACTIVE", "FAILED", "RUNNING", "STOPPED"}

// runMenu drives the numbered interactive menu until the user exits or
// input ends. Errors from one action are printed and the menu continues.
func runMenu(ctx context.Context, c *command, b backend, mon MonitorFlags, in io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(in)
	prompt := func(msg string) (string, bool) {
		_, _ = fmt.Fprint(w, msg)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	_, _ = fmt.Fprintln(w, "=== Service Management ===")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := prompt(menuText)
		if !ok {
			return sc.Err()
		}
		choice, err := strconv.Atoi(line)
		if err != nil {
			_, _ = fmt.Fprintln(w, "Invalid input!")
			continue
		}

		switch choice {
		case 0:
			_, _ = fmt.Fprintln(w, "Exiting... Goodbye!")
			return nil
		case 1:
			err = c.Services(ctx, b, ServicesFlags{}, w)
		case 2:
			name, ok := prompt("Enter service name to search: ")
			if !ok {
				return sc.Err()
			}
			err = c.Find(ctx, b, name, w)
		case 3:
			var sel string
			sel, ok = prompt("Filter by status:\n1. Active\n2. Inactive\n3. Failed\n4. Running\n5. Stopped\nEnter choice: ")
			if !ok {
				return sc.Err()
			}
			n, convErr := strconv.Atoi(sel)
			if convErr != nil || n < 1 || n > len(statusChoices) {
				_, _ = fmt.Fprintln(w, "Invalid choice!")
				continue
			}
			err = c.Services(ctx, b, ServicesFlags{Status: statusChoices[n-1]}, w)
		case 4, 5, 6:
			verb := map[int]string{4: "start", 5: "stop", 6: "restart"}[choice]
			name, ok := prompt("Enter service name to " + verb + ": ")
			if !ok {
				return sc.Err()
			}
			err = c.Control(ctx, b, verb, name, w)
		case 7:
			err = c.Detect(ctx, b, w)
		case 8:
			err = c.Retry(ctx, b, w)
		case 9:
			err = c.Logs(ctx, b, LogsFlags{}, w)
		case 10:
			err = runMonitor(ctx, b, mon, w)
		case 11:
			err = c.Processes(ctx, b, w)
		default:
			_, _ = fmt.Fprintln(w, "Invalid choice! Please try again.")
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			_, _ = fmt.Fprintf(w, "error: %v\n", err)
		}
	}
}
