package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/auth"
	"github.com/georgemunganga/printa-storefront/internal/modules/cart"
	"github.com/georgemunganga/printa-storefront/internal/modules/catalog"
	"github.com/georgemunganga/printa-storefront/internal/modules/checkout"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/spf13/cobra"
)

type checkoutFlags struct {
	method   string
	phone    string
	address  string
	notes    string
	items    []string
	email    string
	password string
	follow   bool
}

func checkoutCmd(a *app) *cobra.Command {
	f := &checkoutFlags{}
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Sign in, fill a cart and pay for it",
		Long: `Runs a full checkout against the backend:
- signs in and fills a cart from the catalogue
- places the order for cash, or prompts the payer's handset for a push payment
- waits for the realtime confirmation, printing the countdown

Ctrl-C during a push payment cancels it and returns to review.`,
		Example: `  storefront checkout --method cash --address "Plot 12, Cairo Road"
  storefront checkout --method push --phone 0961234567 --item PRN-A4-COL=20 --item BND-SPIRAL=1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckout(cmd.Context(), a, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&f.method, "method", "m", "push", "Payment method (cash, push)")
	cmd.Flags().StringVarP(&f.phone, "phone", "p", "", "Mobile-money number of the payer")
	cmd.Flags().StringVarP(&f.address, "address", "a", "Plot 12, Cairo Road, Lusaka", "Delivery address")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Delivery notes")
	cmd.Flags().StringArrayVarP(&f.items, "item", "i", []string{"PRN-A4-BW=10"}, "Cart line as SKU=QUANTITY (repeatable)")
	cmd.Flags().StringVar(&f.email, "email", "", "Customer email (defaults to the sandbox demo customer)")
	cmd.Flags().StringVar(&f.password, "password", "", "Customer password")
	cmd.Flags().BoolVar(&f.follow, "follow", false, "After payment, follow the order's delivery status")
	return cmd
}

func runCheckout(ctx context.Context, a *app, f *checkoutFlags, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	method, ok := order.ParsePaymentMethod(f.method)
	if !ok {
		return fmt.Errorf("unknown payment method %q", f.method)
	}
	plan, ok := payment.PlanFor(a.cfg.Phone.CountryCode)
	if !ok {
		return fmt.Errorf("no numbering plan for country code %q", a.cfg.Phone.CountryCode)
	}
	metrics := observability.NewMetrics()

	// ── Sign in ─────────────────────────────────────────────
	email, password := f.email, f.password
	if email == "" {
		email, password = a.cfg.Sandbox.DemoEmail, a.cfg.Sandbox.DemoPassword
	}
	session := auth.NewSession(nil)
	anonymous := httpx.NewClient(a.cfg.API.BaseURL, a.cfg.API.Timeout, nil)
	if _, err := auth.NewService(anonymous, session).Login(ctx, email, password); err != nil {
		return err
	}
	client := anonymous.WithToken(session.Token)
	fmt.Fprintf(out, "Signed in as %s\n", email)

	// ── Cart ────────────────────────────────────────────────
	c, err := fillCart(ctx, catalog.NewService(catalog.NewHTTPRepository(anonymous)), f.items)
	if err != nil {
		return err
	}
	for _, l := range c.Contents() {
		fmt.Fprintf(out, "  %-12s x%-4d %s\n", l.ProductID, l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(out, "  %-18s %s %s\n", "subtotal", a.cfg.Checkout.Currency, c.Total().StringFixed(2))

	// ── Realtime channel ────────────────────────────────────
	channel := realtime.NewChannel(realtime.Config{
		URL:              a.cfg.Realtime.URL,
		MaxRetries:       a.cfg.Realtime.MaxRetries,
		InitialBackoff:   a.cfg.Realtime.InitialBackoff,
		MaxBackoff:       a.cfg.Realtime.MaxBackoff,
		HandshakeTimeout: a.cfg.Realtime.HandshakeTimeout,
		PingInterval:     a.cfg.Realtime.PingInterval,
	}, session.Token, a.logger, metrics)
	channel.Acquire()
	defer channel.Release()

	// ── Checkout ────────────────────────────────────────────
	co := checkout.New(
		order.NewHTTPRepository(client, session),
		payment.NewHTTPGateway(client, plan, a.cfg.Checkout.Currency),
		channel, c,
		checkout.WithDeadline(a.cfg.Checkout.Deadline),
		checkout.WithTick(a.cfg.Checkout.Tick),
		checkout.WithPollInterval(a.cfg.Checkout.PollInterval),
		checkout.WithPhonePlan(plan),
		checkout.WithLogger(a.logger),
		checkout.WithMetrics(metrics),
	)

	done := make(chan checkout.View, 1)
	printer := &viewPrinter{out: out}
	unwatch := co.Watch(func(v checkout.View) {
		printer.print(v)
		if v.State == checkout.StateSuccess || v.State == checkout.StateError {
			select {
			case done <- v:
			default:
			}
		}
	})
	defer unwatch()

	if err := co.ProceedToPayment(order.Delivery{Address: f.address, Notes: f.notes}); err != nil {
		return err
	}
	if err := co.Submit(ctx, checkout.Selection{Method: method, Phone: f.phone}); err != nil {
		if errs.IsValidation(err) {
			return fmt.Errorf("cannot submit: %s", errs.Reason(err))
		}
		return err
	}

	var final checkout.View
	select {
	case final = <-done:
	case <-ctx.Done():
		if err := co.Cancel(); err == nil {
			fmt.Fprintln(out, "Payment cancelled; the cart is kept.")
		}
		printMetrics(out, metrics)
		return ctx.Err()
	}

	if final.State == checkout.StateError {
		printMetrics(out, metrics)
		return fmt.Errorf("checkout failed: %s", final.Reason)
	}
	fmt.Fprintf(out, "Order %s placed", final.OrderNumber)
	if final.ReceiptID != "" {
		fmt.Fprintf(out, ", receipt %s", final.ReceiptID)
	}
	fmt.Fprintln(out)

	if f.follow {
		if err := followOrder(ctx, co, channel, a, out); err != nil && ctx.Err() == nil {
			return err
		}
	}
	printMetrics(out, metrics)
	return nil
}

// fillCart resolves every SKU=QUANTITY line against the catalogue.
func fillCart(ctx context.Context, products catalog.Service, lines []string) (*cart.Cart, error) {
	c := cart.New()
	for _, line := range lines {
		sku, qtyText, found := strings.Cut(line, "=")
		qty := 1
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(qtyText))
			if err != nil {
				return nil, fmt.Errorf("bad quantity in %q: %w", line, err)
			}
			qty = n
		}
		p, err := products.GetProduct(ctx, catalog.NormaliseSKU(sku))
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", sku, err)
		}
		if !p.IsActive {
			return nil, fmt.Errorf("product %s is not available", p.SKU)
		}
		if err := c.Add(p.SKU, p.Name, p.Price, qty); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// followOrder prints delivery status pushes until the order is delivered or cancelled.
func followOrder(ctx context.Context, co *checkout.Orchestrator, channel *realtime.Channel, a *app, out io.Writer) error {
	placed, err := co.RefreshOrder(ctx)
	if err != nil {
		return err
	}
	finished := make(chan struct{})
	tracker := order.NewTracker(placed, a.logger, func(s order.Status) {
		fmt.Fprintf(out, "Order %s is now %s\n", placed.OrderNumber, s)
		if s.Terminal() {
			close(finished)
		}
	})
	fmt.Fprintf(out, "Following order %s (%s), Ctrl-C to stop\n", placed.OrderNumber, tracker.Status())
	if tracker.Status().Terminal() {
		return nil
	}

	if err := channel.Connect(ctx); err != nil {
		return err
	}
	id := placed.ID.String()
	unsubStatus := channel.Subscribe(realtime.EventOrderStatusChanged, id, func(ev realtime.Event) { tracker.ApplyRaw(ev.Data) })
	defer unsubStatus()
	unsubRider := channel.Subscribe(realtime.EventRiderLocationUpdated, id, func(ev realtime.Event) {
		var loc realtime.RiderLocationUpdated
		if err := ev.Decode(&loc); err == nil {
			fmt.Fprintf(out, "Rider at %.5f, %.5f\n", loc.Lat, loc.Lng)
		}
	})
	defer unsubRider()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// viewPrinter prints a line when the checkout moves on, and the countdown once per
// second while processing.
type viewPrinter struct {
	mu        sync.Mutex
	out       io.Writer
	state     checkout.State
	notice    string
	remaining int
}

func (p *viewPrinter) print(v checkout.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.State != p.state {
		p.state = v.State
		p.remaining = -1
		line := fmt.Sprintf("[%s]", v.State)
		if v.OrderNumber != "" {
			line += " order " + v.OrderNumber
		}
		if v.TransactionID != "" {
			line += " transaction " + v.TransactionID
		}
		if v.Reason != "" {
			line += ": " + v.Reason
		}
		fmt.Fprintln(p.out, line)
	}
	if v.Notice != "" && v.Notice != p.notice {
		fmt.Fprintf(p.out, "  ! %s\n", v.Notice)
	}
	p.notice = v.Notice
	if v.State == checkout.StateProcessing {
		if secs := int(v.Remaining.Seconds()); secs != p.remaining {
			p.remaining = secs
			fmt.Fprintf(p.out, "  waiting for approval on the handset... %ds\n", secs)
		}
	}
}

func printMetrics(out io.Writer, m *observability.Metrics) {
	snap := m.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(out, "Metrics:")
	for _, k := range keys {
		fmt.Fprintf(out, "  %-22s %d\n", k, snap[k])
	}
}
