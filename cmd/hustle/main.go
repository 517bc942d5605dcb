package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"campushustle/internal/app"
	"campushustle/internal/config"
	"campushustle/internal/db"
	"campushustle/internal/domain"
	"campushustle/internal/engine"
	"campushustle/internal/migrate"
	"campushustle/internal/repo"
	"campushustle/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hustle",
	Short: "CampusHustle marketplace CLI",
	Long: `CampusHustle is a marketplace where students post small jobs (hustles) and bid on each other's.
- Hustles: a title, a category, a cash amount or a trade deal, and a deadline. They move open -> in progress -> finished.
- Bids: an amount up to the marketplace ceiling and a short pitch. The owner assigns one bidder.
- Messages: per-hustle chat between two users; unread messages addressed to you are your notifications.
- Payments: mobile-money intents that move pending -> processing -> completed or failed.
- Event log: every change is recorded, view it with 'hustle log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HUSTLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user id")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	for _, name := range []string{"workspace", "json", "user-id", "debug", "no-color"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(bidCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(logCmd())
}

func newLogger() lgr.L {
	if viper.GetBool("debug") {
		return lgr.New(lgr.Msec, lgr.Debug, lgr.CallerFunc)
	}
	return lgr.New(lgr.Msec)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowUserHeader, devTokens bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			a, err := app.Bootstrap(cmd.Context(), app.Options{Workspace: viper.GetString("workspace"), Logger: logger})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Env.JWTSecret == "" && !allowUserHeader {
				return fmt.Errorf("HUSTLE_JWT_SECRET is required for bearer auth (or pass --allow-user-header)")
			}
			if devTokens && a.Env.JWTSecret == "" {
				return fmt.Errorf("--dev-tokens needs HUSTLE_JWT_SECRET to sign with")
			}
			if err := a.CheckCallbackSecret(); err != nil {
				return err
			}
			if a.Env.CallbackSecret == "" {
				logger.Logf("[WARN] HUSTLE_CALLBACK_SECRET is not set, payment callbacks will be rejected")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:             a.Env.JWTSecret,
					AllowLegacyUserHeader: allowUserHeader,
					EnableDevTokens:       devTokens,
					CallbackSecret:        a.Env.CallbackSecret,
					Logger:                logger,
				},
				CORSOrigins: a.Config.Server.CORSOrigins,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			notifierDone := a.Start(ctx)
			defer func() {
				cancel()
				<-notifierDone
			}()
			if d := server.NewWebhookDispatcher(a.Engine, logger); d != nil {
				go d.Run(ctx)
			}

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Logf("[INFO] serving CampusHustle API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowUserHeader, "allow-user-header", false, "accept X-User-Id without a token (development only)")
	cmd.Flags().BoolVar(&devTokens, "dev-tokens", false, "expose POST /auth/dev/token to mint tokens for any user (development only)")
	return cmd
}

func migrateCmd() *cobra.Command {
	var to int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		Long:  "Applies pending migrations. --to stops at a given schema version, which is useful for trying the degraded modes (1: tasks only, 2: bids, 3: assignment).",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.MigrateTo(conn, to); err != nil {
				return err
			}
			current, err := migrate.Current(conn)
			if err != nil {
				return err
			}
			latest, err := migrate.Latest()
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d of %d\n", current, latest)
			return nil
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "target version (0 = latest)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect marketplace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default hustle.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate hustle.yml and the HUSTLE_* environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			if _, err := config.LoadEnv(); err != nil {
				return err
			}
			fmt.Println(color.GreenString("config ok"))
			return nil
		},
	})
	return cfg
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:     "task",
		Aliases: []string{"hustle"},
		Short:   "Post and manage hustles",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskCompleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a hustle",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrLine(t, "created hustle %s (%s)", t.ID, t.Title)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Category, "category", "other", "category")
	cmd.Flags().StringVar(&opts.OfferType, "offer-type", "cash", "cash or trade")
	cmd.Flags().StringVar(&opts.OfferAmount, "amount", "", "cash amount")
	cmd.Flags().StringVar(&opts.TradeDeal, "trade", "", "trade deal")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (YYYY-MM-DD or RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func taskListCmd() *cobra.Command {
	var opts engine.ListTaskOptions
	var f engine.TaskFilter
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hustles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine {
				opts.Involving = viper.GetString("user-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTasks(ctx, opts)
				if err != nil {
					return err
				}
				items = engine.FilterTasks(items, f)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Offer", "Status", "Bids", "Poster", "Deadline"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Offer, statusText(t.Status), t.BidCount, t.Poster.Name, when(t.Deadline)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "max rows")
	cmd.Flags().BoolVar(&mine, "mine", false, "only hustles I posted or was assigned")
	cmd.Flags().StringVar(&f.SearchTerm, "search", "", "search title and description")
	cmd.Flags().StringVar(&f.MaxPrice, "max-price", "", "hide cash hustles above this amount")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a hustle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <bidder-id>",
		Short: "Give an open hustle to one of its bidders",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Assign(ctx, args[0], viper.GetString("user-id"), args[1])
				if err != nil {
					return err
				}
				return printJSONOrLine(t, "%s assigned to %s", t.ID, args[1])
			})
		},
	}
}

func taskCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark an in-progress hustle finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Complete(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrLine(t, "%s is %s", t.ID, statusText(t.Status))
			})
		},
	}
}

func bidCmd() *cobra.Command {
	bid := &cobra.Command{Use: "bid", Short: "Bid on hustles"}

	var opts engine.SubmitBidOptions
	place := &cobra.Command{
		Use:   "place <task-id>",
		Short: "Place a bid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TaskID = args[0]
			opts.BidderID = viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.PlaceBid(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrLine(b, "bid %s placed", b.ID)
			})
		},
	}
	place.Flags().StringVar(&opts.Amount, "amount", "", "bid amount")
	place.Flags().StringVar(&opts.Message, "message", "", "pitch to the owner")
	place.Flags().StringVar(&opts.BidderName, "name", "", "display name shown with the bid")
	_ = place.MarkFlagRequired("amount")
	bid.AddCommand(place)

	bid.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List bids on a hustle, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.ListBids(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				if list.Notice != "" {
					fmt.Println(color.YellowString(list.Notice))
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Bidder", "Amount", "Message", "When"})
				for _, b := range list.Bids {
					tw.AppendRow(table.Row{b.ID, b.BidderName, humanize.Comma(int64(b.Amount)), b.Message, when(b.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return bid
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Chat about hustles"}

	msg.AddCommand(&cobra.Command{
		Use:   "send <task-id> <recipient-id> <text>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SendMessage(ctx, engine.SendMessageOptions{
					TaskID:      args[0],
					SenderID:    viper.GetString("user-id"),
					RecipientID: args[1],
					Text:        args[2],
				})
				if err != nil {
					return err
				}
				return printJSONOrLine(m, "sent %s", m.ID)
			})
		},
	})

	msg.AddCommand(&cobra.Command{
		Use:   "thread <task-id> <other-user-id>",
		Short: "Show a conversation, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			me := viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListThread(ctx, args[0], me, args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, m := range items {
					who := color.CyanString(m.SenderID)
					if m.SenderID == me {
						who = color.GreenString("you")
					}
					fmt.Printf("%s %s: %s\n", color.HiBlackString(when(m.CreatedAt)), who, m.Message)
				}
				return nil
			})
		},
	})

	msg.AddCommand(&cobra.Command{
		Use:   "read <task-id> <sender-id>",
		Short: "Mark a sender's messages about a hustle as read",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.MarkThreadRead(ctx, viper.GetString("user-id"), args[1], args[0])
				if err != nil {
					return err
				}
				fmt.Printf("marked %d message(s) read\n", n)
				return nil
			})
		},
	})

	msg.AddCommand(&cobra.Command{
		Use:   "conversations",
		Short: "List my conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListConversations(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Hustle", "With", "Last message", "Unread", "When"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.TaskTitle, c.Counterpart, c.LastMessage, c.Unread, when(c.LastAt)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return msg
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Aliases: []string{"notifications"}, Short: "Unread message notifications"}

	var q engine.NotificationQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Notifications(ctx, viper.GetString("user-id"), q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "From", "Hustle", "Message", "Read", "When"})
				for _, item := range items {
					read := color.YellowString("new")
					if item.Read {
						read = "read"
					}
					tw.AppendRow(table.Row{item.ID, item.SenderName, item.TaskTitle, item.Message, read, when(item.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&q.UnreadOnly, "unread", false, "only unread")
	list.Flags().IntVar(&q.Limit, "limit", 50, "max rows")
	n.AddCommand(list)

	n.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Number of unread notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UnreadCount(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				fmt.Println(c)
				return nil
			})
		},
	})

	n.AddCommand(&cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark one notification read, or all of them without an id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					return e.MarkNotificationRead(ctx, user, args[0])
				}
				c, err := e.MarkAllNotificationsRead(ctx, user)
				if err != nil {
					return err
				}
				fmt.Printf("marked %d notification(s) read\n", c)
				return nil
			})
		},
	})
	return n
}

func paymentCmd() *cobra.Command {
	pay := &cobra.Command{Use: "payment", Short: "Mobile-money payments"}

	pay.AddCommand(&cobra.Command{
		Use:   "pay <task-id> <phone>",
		Short: "Pay the owner of an in-progress hustle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.PayForTask(ctx, args[0], viper.GetString("user-id"), args[1])
				if err != nil {
					return err
				}
				return printJSONOrLine(p, "payment %s is %s", p.Reference, paymentText(p.Status))
			})
		},
	})

	pay.AddCommand(&cobra.Command{
		Use:   "status <reference> <status>",
		Short: "Record a gateway status (processing, completed, failed)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdatePaymentStatus(ctx, args[0], args[1], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrLine(p, "payment %s is %s", p.Reference, paymentText(p.Status))
			})
		},
	})

	pay.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Payments I made or received",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListUserPayments(ctx, viper.GetString("user-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Reference", "Hustle", "Payer", "Payee", "Amount", "Status", "When"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Reference, p.TaskID, p.PayerID, p.PayeeID, humanize.Comma(int64(p.Amount)), paymentText(p.Status), when(p.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return pay
}

func profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "User profiles"}

	profile.AddCommand(&cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a profile (defaults to --user-id)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := viper.GetString("user-id")
			if len(args) == 1 {
				id = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProfile(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	})

	var u engine.ProfileUpdate
	var age int
	update := &cobra.Command{
		Use:   "update",
		Short: "Update my profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("age") {
				u.Age = &age
			}
			id := viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, _, err := e.EnsureProfile(ctx, id, u.Name, u.Email); err != nil {
					return err
				}
				p, err := e.UpdateProfile(ctx, id, u)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	update.Flags().StringVar(&u.Name, "name", "", "display name")
	update.Flags().StringVar(&u.Email, "email", "", "email")
	update.Flags().StringVar(&u.Phone, "phone", "", "phone")
	update.Flags().StringVar(&u.School, "school", "", "school")
	update.Flags().StringVar(&u.Course, "course", "", "course")
	update.Flags().StringVar(&u.Year, "year", "", "year of study")
	update.Flags().StringVar(&u.Sex, "sex", "", "sex")
	update.Flags().IntVar(&age, "age", 0, "age")
	_ = update.MarkFlagRequired("name")
	profile.AddCommand(update)
	return profile
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.EventLog(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Type", "Entity", "Actor", "When"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, when(evt.TS)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor id")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	if viper.GetBool("debug") {
		e.Logger = newLogger()
	}
	return fn(ctx, e)
}

// withApp is withEngine plus storage and the configured payment gateway.
func withApp(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Bootstrap(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: newLogger()})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrLine(v any, format string, args ...any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Printf(format+"\n", args...)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusText(status string) string {
	switch status {
	case domain.StatusOpen:
		return color.GreenString(status)
	case domain.StatusInProgress:
		return color.YellowString(status)
	default:
		return color.HiBlackString(status)
	}
}

func paymentText(status string) string {
	switch status {
	case domain.PaymentCompleted:
		return color.GreenString(status)
	case domain.PaymentFailed:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}

// when renders a stored timestamp relative to now, falling back to the raw value.
func when(ts string) string {
	for _, layout := range []string{engine.TimeFormat, time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return humanize.Time(t)
		}
	}
	if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return humanize.Time(time.Unix(unix, 0))
	}
	return ts
}
