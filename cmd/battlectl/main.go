package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	noColor   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("错误: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "battlectl",
		Short:         "卡牌对战服务器命令行客户端",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if token == "" {
				token = loadToken()
			}
		},
	}
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("CARD_BATTLE_SERVER", "http://127.0.0.1:8080"), "服务器地址")
	root.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("CARD_BATTLE_TOKEN"), "访问令牌（默认读取 ~/.card-battle/token）")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "关闭彩色输出")

	root.AddCommand(
		loginCmd(),
		cardsCmd(),
		sessionsCmd(),
		createCmd(),
		joinCmd(),
		leaveCmd(),
		deckCmd(),
		battleCmd(),
		watchCmd(),
	)
	return root
}

func client() *lobbyClient {
	return newLobbyClient(serverURL, token)
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "登录并保存令牌",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			tok, err := client().login(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			path, err := saveToken(tok)
			if err != nil {
				return err
			}
			color.Green("登录成功，令牌已保存到 %s", path)
			return nil
		},
	}
}

func cardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cards",
		Short: "列出卡牌目录",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			cards, err := client().cards(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCOST\tATK/DEF\tRARITY")
			for _, c := range cards {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\n", c.ID, c.Name, c.Type, c.ManaCost, c.Attack, c.Defense, rarity(c.Rarity))
			}
			return w.Flush()
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "列出等待对手的会话",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			sessions, err := client().waitingSessions(ctx)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				color.Yellow("暂无等待中的会话")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tHOST\tSTATUS\tAGE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.HostID, s.Status, time.Since(s.CreatedAt).Truncate(time.Second))
			}
			return w.Flush()
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "创建会话",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			s, err := client().createSession(ctx)
			if err != nil {
				return err
			}
			printSession(s)
			return nil
		},
	}
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id>",
		Short: "以客人身份加入会话",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			s, err := client().sessionAction(ctx, args[0], "join", nil)
			if err != nil {
				return err
			}
			printSession(s)
			return nil
		},
	}
}

func leaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <session-id>",
		Short: "离开会话，对战中离开视为认输",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			if _, err := client().sessionAction(ctx, args[0], "leave", nil); err != nil {
				return err
			}
			color.Green("已离开会话 %s", args[0])
			return nil
		},
	}
}

func deckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deck <session-id> <deck-id>",
		Short: "为会话选择卡组",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			s, err := client().sessionAction(ctx, args[0], "deck", map[string]string{"deck_id": args[1]})
			if err != nil {
				return err
			}
			printSession(s)
			return nil
		},
	}
}

func battleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "battle <session-id>",
		Short: "查看对战快照",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			st, err := client().battle(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func watchCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "加入对战连接并打印推送",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, err := client().dialBattle(ctx, path)
			if err != nil {
				return err
			}
			defer conn.Close()
			go func() {
				<-ctx.Done()
				conn.Close()
			}()

			if err := conn.WriteJSON(map[string]string{"action": "join_session", "session_id": args[0]}); err != nil {
				return err
			}
			for {
				var msg map[string]interface{}
				if err := conn.ReadJSON(&msg); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				printMessage(msg)
			}
		},
	}
	cmd.Flags().StringVar(&path, "path", "/ws/battle", "WebSocket路径")
	return cmd
}

func printSession(s *sessionInfo) {
	if s == nil {
		return
	}
	color.Green("会话 %s [%s]", s.ID, s.Status)
	fmt.Printf("  房主: %s\n", s.HostID)
	if s.GuestID != "" {
		fmt.Printf("  客人: %s\n", s.GuestID)
	}
}

func printMessage(msg map[string]interface{}) {
	typ, _ := msg["type"].(string)
	switch typ {
	case "error":
		color.Red("[error] %v (%v)", msg["error"], msg["kind"])
	case "heartbeat", "pong":
		color.HiBlack("[%s]", typ)
	case "battle_state":
		color.Cyan("[battle_state] 回合 %v 当前 %v %v", msg["turn_number"], msg["current_turn"], msg["last_action"])
		if finished, _ := msg["is_finished"].(bool); finished {
			color.Magenta("对战结束，胜者 %v", msg["winner"])
		}
	default:
		data, _ := json.Marshal(msg)
		color.Yellow("[%s] %s", typ, data)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rarity(r string) string {
	switch r {
	case "legendary":
		return color.New(color.FgHiYellow).Sprint(r)
	case "epic":
		return color.New(color.FgMagenta).Sprint(r)
	case "rare":
		return color.New(color.FgBlue).Sprint(r)
	default:
		return r
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func tokenPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".card-battle", "token"), nil
}

func loadToken() string {
	path, err := tokenPath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(tok string) (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(tok+"\n"), 0o600)
}
