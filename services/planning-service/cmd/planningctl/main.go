package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/md-rashed-zaman/trainingplanner/libs/auth"
	"github.com/md-rashed-zaman/trainingplanner/libs/config"
	"github.com/md-rashed-zaman/trainingplanner/libs/grpcx"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/grpcserver"
)

const usage = `usage: planningctl [-addr host:port] <command> [flags]

commands:
  week-window  -date YYYY-MM-DD
  resolve      -person ID -date YYYY-MM-DD [-weekday NAME] -slot NAME
  deduplicate  [-person ID] [-dry-run] [-token JWT]
`

func main() {
	_ = config.LoadDotEnv(".env")
	global := flag.NewFlagSet("planningctl", flag.ExitOnError)
	addr := global.String("addr", config.String("PLANNING_GRPC_ADDR", "localhost:9095"), "planning-service gRPC address")
	timeout := global.Duration("timeout", 30*time.Second, "per-call timeout")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	conn, err := grpcx.Dial(*addr, grpcx.DialOptions{})
	if err != nil {
		fatal(err.Error())
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, grpcserver.NewClient(conn), global.Args(), os.Stdout); err != nil {
		fatal(err.Error())
	}
}

func run(ctx context.Context, client *grpcserver.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(strings.TrimSpace(usage))
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "week-window":
		date := fs.String("date", "", "reference date (default today)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		resp, err := client.WeekWindow(ctx, *date)
		if err != nil {
			return describe(err)
		}
		return printJSON(out, resp)

	case "resolve":
		person := fs.String("person", "", "person id")
		date := fs.String("date", "", "date YYYY-MM-DD")
		weekday := fs.String("weekday", "", "weekday name, derived from -date when empty")
		slot := fs.String("slot", "morning", "slot name")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		resp, err := client.ResolveAvailability(ctx, *person, *date, *weekday, *slot)
		if err != nil {
			return describe(err)
		}
		return printJSON(out, resp)

	case "deduplicate":
		person := fs.String("person", "", "limit the run to one person")
		dryRun := fs.Bool("dry-run", false, "report without deleting")
		token := fs.String("token", config.String("ADMIN_TOKEN", ""), "admin bearer token")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		bearer, err := adminToken(*token)
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+bearer)
		resp, err := client.Deduplicate(ctx, *person, *dryRun)
		if err != nil {
			return describe(err)
		}
		return printJSON(out, resp)
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

// adminToken returns token, or mints a short-lived one from ADMIN_JWT_SECRET.
func adminToken(token string) (string, error) {
	if strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), nil
	}
	secret := config.String("ADMIN_JWT_SECRET", "")
	if secret == "" {
		return "", errors.New("deduplicate needs -token or ADMIN_JWT_SECRET")
	}
	return auth.SignHS256(auth.NewClaims("planningctl", "admin", 5*time.Minute), secret)
}

func printJSON(out io.Writer, msg proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

// describe renders a status error together with any report attached to it.
func describe(err error) error {
	st := status.Convert(err)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", st.Code(), st.Message())
	for _, d := range st.Details() {
		if m, ok := d.(proto.Message); ok {
			if raw, err := protojson.Marshal(m); err == nil {
				fmt.Fprintf(&b, "\n%s", raw)
			}
		}
	}
	return errors.New(b.String())
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
