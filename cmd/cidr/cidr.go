package cidr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/ipamd/internal/model"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// Commands returns the CIDR management subcommands
func Commands() []*cli.Command {
	return []*cli.Command{
		registerCommand(),
		listCommand(),
		showCommand(),
		childrenCommand(),
		ancestorsCommand(),
		treeCommand(),
		freeCommand(),
		deleteCommand(),
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:         "server",
			Aliases:      []string{"s"},
			Usage:        "Server URL",
			DefaultValue: getEnv("IPAMD_SERVER_URL", "http://localhost:8080"),
		},
		&cli.StringFlag{
			Name:         "token",
			Usage:        "API bearer token",
			DefaultValue: os.Getenv("IPAMD_API_TOKEN"),
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:        "register",
		Usage:       "Register a CIDR block",
		Description: "Register a CIDR block in the hierarchy",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "cidr", Required: true},
		},
		Flags: append(clientFlags(),
			&cli.StringFlag{Name: "kind", Usage: "Block kind (STATIC, VPC, SUBNET, EIP)"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			payload := map[string]interface{}{
				"cidr": cmd.GetStringArg("cidr"),
				"kind": cmd.GetString("kind"),
				"tags": parseList(cmd.GetString("tags")),
			}
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			var rec model.CIDRRecord
			if err := doJSON(cmd, "POST", "/api/cidrs", string(data), http.StatusCreated, &rec); err != nil {
				return err
			}

			fmt.Printf("Registered: %s (%s)\n", rec.CIDR, rec.Kind)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List registered CIDR blocks",
		Description: "List registered CIDR blocks, optionally filtered by tag or kind",
		Flags: append(clientFlags(),
			&cli.StringFlag{Name: "tag", Usage: "Filter by tag"},
			&cli.StringFlag{Name: "kind", Usage: "Filter by kind"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			query := url.Values{}
			if tag := cmd.GetString("tag"); tag != "" {
				query.Set("tag", tag)
			}
			if kind := cmd.GetString("kind"); kind != "" {
				query.Set("kind", kind)
			}
			path := "/api/cidrs"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			var records []model.CIDRRecord
			if err := doJSON(cmd, "GET", path, "", http.StatusOK, &records); err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No CIDR blocks found")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%-24s %-8s %s\n", rec.CIDR, rec.Kind, strings.Join(rec.Tags, ","))
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show a CIDR block",
		Description: "Show a registered CIDR block with its kind, tags and source",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "cidr", Required: true},
		},
		Flags: clientFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			var rec model.CIDRRecord
			path := "/api/cidrs/lookup?cidr=" + url.QueryEscape(cmd.GetStringArg("cidr"))
			if err := doJSON(cmd, "GET", path, "", http.StatusOK, &rec); err != nil {
				return err
			}

			fmt.Printf("CIDR:   %s\n", rec.CIDR)
			fmt.Printf("Kind:   %s\n", rec.Kind)
			fmt.Printf("Tags:   %s\n", strings.Join(rec.Tags, ", "))
			fmt.Printf("Source: %s\n", rec.Source)
			return nil
		},
	}
}

func childrenCommand() *cli.Command {
	return &cli.Command{
		Name:        "children",
		Usage:       "List immediate children",
		Description: "List the immediate children of a CIDR block (no argument lists top-level blocks)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "cidr"},
		},
		Flags: clientFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			path := "/api/cidrs/children"
			if cidr := cmd.GetStringArg("cidr"); cidr != "" {
				path += "?cidr=" + url.QueryEscape(cidr)
			}

			var body struct {
				Children []string `json:"children"`
			}
			if err := doJSON(cmd, "GET", path, "", http.StatusOK, &body); err != nil {
				return err
			}

			if len(body.Children) == 0 {
				fmt.Println("No children")
				return nil
			}
			for _, c := range body.Children {
				fmt.Println(c)
			}
			return nil
		},
	}
}

func ancestorsCommand() *cli.Command {
	return &cli.Command{
		Name:        "ancestors",
		Usage:       "List containing blocks",
		Description: "List the chain of blocks containing a CIDR, outermost first",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "cidr", Required: true},
		},
		Flags: clientFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			path := "/api/cidrs/ancestors?cidr=" + url.QueryEscape(cmd.GetStringArg("cidr"))

			var body struct {
				Ancestors []string `json:"ancestors"`
			}
			if err := doJSON(cmd, "GET", path, "", http.StatusOK, &body); err != nil {
				return err
			}

			if len(body.Ancestors) == 0 {
				fmt.Println("Top-level block (no ancestors)")
				return nil
			}
			for _, a := range body.Ancestors {
				fmt.Println(a)
			}
			return nil
		},
	}
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:        "tree",
		Usage:       "Print the CIDR hierarchy",
		Description: "Print the CIDR hierarchy as a tree (no argument prints the whole hierarchy)",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "cidr"},
		},
		Flags: clientFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			path := "/api/cidrs/tree"
			if cidr := cmd.GetStringArg("cidr"); cidr != "" {
				path += "?cidr=" + url.QueryEscape(cidr)
			}

			var root cidrtree.NestedNode
			if err := doJSON(cmd, "GET", path, "", http.StatusOK, &root); err != nil {
				return err
			}

			printNested(root, "")
			return nil
		},
	}
}

func freeCommand() *cli.Command {
	return &cli.Command{
		Name:        "free",
		Usage:       "Find a free sub-block",
		Description: "Find the first unallocated sub-block of the given prefix length inside a parent",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "parent", Required: true},
			&cli.StringArg{Name: "prefix-length", Required: true},
		},
		Flags: clientFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			prefixLen, err := strconv.Atoi(cmd.GetStringArg("prefix-length"))
			if err != nil {
				return fmt.Errorf("invalid prefix length: %s", cmd.GetStringArg("prefix-length"))
			}
			payload := model.FreeBlockRequest{
				Parent:       cmd.GetStringArg("parent"),
				PrefixLength: prefixLen,
			}
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			var body model.FreeBlockResponse
			if err := doJSON(cmd, "POST", "/api/cidrs/free-block", string(data), http.StatusOK, &body); err != nil {
				return err
			}

			fmt.Println(body.CIDR)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:        "delete",
		Usage:       "Deregister a CIDR block",
		Description: "Remove a CIDR block; its children move up to the next containing block",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "cidr", Required: true},
		},
		Flags: clientFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			path := "/api/cidrs?cidr=" + url.QueryEscape(cmd.GetStringArg("cidr"))
			if err := doJSON(cmd, "DELETE", path, "", http.StatusNoContent, nil); err != nil {
				return err
			}

			fmt.Println("CIDR deleted")
			return nil
		},
	}
}

// doJSON performs a request against the server and decodes the response
func doJSON(cmd *cli.Command, method, path, body string, wantStatus int, out interface{}) error {
	client := &http.Client{Timeout: 30 * time.Second}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, cmd.GetString("server")+path, reader)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := cmd.GetString("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s", apiErr.Error)
		}
		return fmt.Errorf("server error: %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printNested(node cidrtree.NestedNode, indent string) {
	if node.CIDR != "" {
		fmt.Printf("%s%s (%s)\n", indent, node.CIDR, node.Kind)
		indent += "  "
	}
	for _, child := range node.Children {
		printNested(child, indent)
	}
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
