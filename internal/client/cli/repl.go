package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/kappi/internal/client/services"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Scan(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	History(ctx context.Context) error
	Location(ctx context.Context, args []string) error
	Link(ctx context.Context, args []string) error
	Variety(ctx context.Context, args []string) error
}

// runREPL starts a simple read–eval–print loop for the kappi CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a' with the remaining tokens as arguments. The
// loop exits on EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Always:
//	  - help                      show available commands
//	  - status                    show session, queue and connectivity
//	  - scan <image> [label conf [severity [stage]]]
//	                              capture a scan; works offline
//	  - list [all] [variety]      list scans waiting to be sent
//	  - variety [arabica|robusta] coffee variety for treatment advice
//	  - delete <id>               drop a waiting scan
//	  - sync                      send waiting scans now
//	  - exit | quit               leave the program
//
//	Not logged in:
//	  - register | login
//
//	Logged in:
//	  - history                   scans already on the server
//	  - location <lat> <lng>      set the farm location
//	  - link <provider> <id>      link a social account
//	  - logout
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("kappi %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: status, scan, (l)ist, delete, variety, sync, history, location, link, logout, exit")
			} else {
				printlnFn("Available commands: register, login, status, scan, (l)ist, delete, variety, sync, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "scan":
			cmdErr = a.Scan(ctx, args)

		case "l", "list":
			cmdErr = a.List(ctx, args)

		case "delete":
			cmdErr = a.Delete(ctx, args)

		case "variety":
			cmdErr = a.Variety(ctx, args)

		case "sync":
			cmdErr = a.Sync(ctx)

		case "history":
			cmdErr = a.History(ctx)

		case "location":
			cmdErr = a.Location(ctx, args)

		case "link":
			cmdErr = a.Link(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", services.UserMessage(cmdErr))
		}
	}
}
