package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"possync-go/internal/config"
	"possync-go/internal/events"
	"possync-go/internal/services"
	"possync-go/internal/storage"
	"possync-go/internal/types"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection, token, and sync state",
		RunE: withApp(func(a *app, cmd *cobra.Command, _ []string) error {
			info := a.discovery.State().Snapshot()

			token := a.tokens.GetCachedToken()
			productsSync, _ := a.store.GetSyncTime(storage.ProductsSyncTimeKey)
			ordersSync, _ := a.store.GetSyncTime(storage.OrdersSyncTimeKey)
			pending, _ := a.store.ListPendingSync()

			fmt.Printf("Connected:          %v\n", info.Connected)
			if info.LastSuccessfulURL != "" {
				fmt.Printf("Last good URL:      %s\n", info.LastSuccessfulURL)
			}
			fmt.Printf("Token cached:       %v\n", token != "")
			if !productsSync.IsZero() {
				fmt.Printf("Last products sync: %s\n", productsSync.Format("2006-01-02 15:04:05"))
			}
			if !ordersSync.IsZero() {
				fmt.Printf("Last orders sync:   %s\n", ordersSync.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("Pending uploads:    %d\n", len(pending))
			return nil
		}),
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Discover a reachable backend among the candidate URLs",
		RunE: withApp(func(a *app, cmd *cobra.Command, _ []string) error {
			url, err := a.discovery.FindWorkingServer(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(url)
			return nil
		}),
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Authenticate and cache the session token",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			if _, err := a.gateway.Login(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Logged in.")
			return nil
		}),
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the cached session token",
		RunE: withApp(func(a *app, _ *cobra.Command, _ []string) error {
			if err := a.gateway.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		}),
	}
}

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Product operations",
	}

	var opts services.ProductListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List products (filtered and sorted client-side)",
		RunE: withApp(func(a *app, c *cobra.Command, _ []string) error {
			products, err := a.products.List(c.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(products)
		}),
	}
	list.Flags().StringVar(&opts.Category, "category", "", "filter by category")
	list.Flags().BoolVar(&opts.ActiveOnly, "active", false, "only active products")
	list.Flags().StringVar(&opts.Search, "search", "", "substring match on name")
	list.Flags().StringVar(&opts.SortBy, "sort", "", "sort by 'name' or 'created'")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "server-side limit")
	list.Flags().IntVar(&opts.Offset, "offset", 0, "server-side offset")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over the locally indexed products",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(a *app, c *cobra.Command, args []string) error {
			results, err := a.products.Search(c.Context(), args[0], 20)
			if err != nil {
				return err
			}
			return printJSON(results)
		}),
	}

	syncStock := &cobra.Command{
		Use:   "sync-stock <product-id> <quantity>",
		Short: "Update stock via the dual-write path (local cache + server)",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(a *app, c *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			res := a.products.UpdateStock(c.Context(), args[0], qty)
			if !res.Success {
				return res.Err
			}
			fmt.Printf("Stock updated (%d retries).\n", res.RetryCount)
			return nil
		}),
	}

	trackStock := &cobra.Command{
		Use:   "track-stock <product-id> <true|false>",
		Short: "Toggle stock tracking via the dual-write path",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(a *app, c *cobra.Command, args []string) error {
			track, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid flag %q", args[1])
			}
			res := a.products.SetTrackStock(c.Context(), args[0], track)
			if !res.Success {
				return res.Err
			}
			fmt.Println("Track-stock flag updated.")
			return nil
		}),
	}

	cmd.AddCommand(list, search, syncStock, trackStock)
	return cmd
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order operations",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		RunE: withApp(func(a *app, c *cobra.Command, _ []string) error {
			orders, err := a.orders.List(c.Context(), services.OrderListOptions{Status: status})
			if err != nil {
				return err
			}
			return printJSON(orders)
		}),
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")

	create := &cobra.Command{
		Use:   "create <name:qty:price> [...]",
		Short: "Create an order from line items",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(a *app, c *cobra.Command, args []string) error {
			order := &types.Order{Status: types.OrderStatusPending}
			for _, arg := range args {
				item, err := parseOrderItem(arg)
				if err != nil {
					return err
				}
				order.Items = append(order.Items, item)
				order.Total += item.UnitPrice * float64(item.Quantity)
			}

			created, err := a.orders.Create(c.Context(), order)
			if err != nil {
				return err
			}
			return printJSON(created)
		}),
	}

	cmd.AddCommand(list, create)
	return cmd
}

// watchCmd keeps the process alive, logs connection and sync events, and
// picks up config file changes.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch connection and sync events until interrupted",
		RunE: withApp(func(a *app, cmd *cobra.Command, _ []string) error {
			if err := a.loader.StartWatching(func(cfg *config.Config) error {
				a.logger.Info("Configuration reloaded",
					zap.Strings("candidate_urls", cfg.CandidateURLs))
				return nil
			}); err != nil {
				return err
			}
			defer func() { _ = a.loader.Stop() }()

			channels := []<-chan events.Event{
				a.bus.Subscribe(events.ConnectionEstablished),
				a.bus.Subscribe(events.ConnectionLost),
				a.bus.Subscribe(events.StockSynced),
				a.bus.Subscribe(events.StockRolledBack),
			}

			if _, err := a.discovery.FindWorkingServer(cmd.Context()); err != nil {
				a.logger.Warn("No backend reachable yet", zap.Error(err))
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			merged := mergeEvents(channels...)
			for {
				select {
				case ev := <-merged:
					a.logger.Info("Event",
						zap.String("type", string(ev.Type)),
						zap.String("url", ev.URL),
						zap.String("product_id", ev.ProductID))
				case <-sig:
					return nil
				case <-cmd.Context().Done():
					return nil
				}
			}
		}),
	}
}

// mergeEvents fans the subscription channels into one. Sends drop when the
// merged buffer is full, same as the bus itself, so the forwarder goroutines
// never block after the reader stops.
func mergeEvents(channels ...<-chan events.Event) <-chan events.Event {
	out := make(chan events.Event, config.EventChannelBufferSizeAll)
	for _, ch := range channels {
		go func(c <-chan events.Event) {
			for ev := range c {
				select {
				case out <- ev:
				default:
				}
			}
		}(ch)
	}
	return out
}

// parseOrderItem parses "name:qty:price" ("price" optional).
func parseOrderItem(arg string) (types.OrderItem, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return types.OrderItem{}, fmt.Errorf("invalid item %q, expected name:qty[:price]", arg)
	}

	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return types.OrderItem{}, fmt.Errorf("invalid quantity in %q", arg)
	}

	item := types.OrderItem{Name: parts[0], Quantity: qty}
	if len(parts) == 3 {
		price, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return types.OrderItem{}, fmt.Errorf("invalid price in %q", arg)
		}
		item.UnitPrice = price
	}
	return item, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
