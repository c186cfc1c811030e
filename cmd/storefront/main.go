package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/cart"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/infrastructure/profile"
	"github.com/example/ec-storefront/internal/payment"
)

// printNavigator hands the external redirect to the user: a terminal
// cannot navigate, so the checkout URL is printed for the browser.
type printNavigator struct{}

func (printNavigator) Navigate(url string) error {
	fmt.Printf("\nComplete your payment in the browser:\n\n    %s\n\n", url)
	return nil
}

type app struct {
	accounts     *auth.Service
	identity     *cart.IdentityManager
	engine       *cart.Engine
	browser      *catalog.Browser
	orchestrator *checkout.Orchestrator
	callbacks    *payment.Handler
	stdin        *bufio.Scanner
}

func main() {
	_ = godotenv.Load()

	apiURL := getEnv("STOREFRONT_API_URL", "http://localhost:8000")
	profilePath := getEnv("STOREFRONT_PROFILE", "storefront.db")
	callbackAddr := getEnv("STOREFRONT_CALLBACK_ADDR", "localhost:4242")
	confirmPayments := getEnv("STOREFRONT_CONFIRM_PAYMENTS", "false") == "true"

	log.Println("[Storefront] ========================================")
	log.Println("[Storefront] EC Storefront")
	log.Println("[Storefront] ========================================")
	log.Printf("[Storefront] API: %s", apiURL)
	log.Printf("[Storefront] Profile: %s", profilePath)
	log.Printf("[Storefront] Payment callback: http://%s", callbackAddr)

	store, err := profile.OpenSQLite(profilePath)
	if err != nil {
		log.Fatalf("[Storefront] Failed to open profile: %v", err)
	}
	defer store.Close()

	tokens := auth.NewTokenStore(store)
	client := api.NewClient(apiURL,
		api.WithTokenSource(tokens),
		api.WithUnauthorizedHandler(func() {
			fmt.Println("Your session has expired. Please log in again with `login <email>`.")
		}))

	identity := cart.NewIdentityManager(client, store)

	var paymentOpts []payment.Option
	if confirmPayments {
		paymentOpts = append(paymentOpts, payment.WithConfirmation(client))
	}
	callbacks := payment.NewHandler(identity, store, paymentOpts...)

	server := &http.Server{Addr: callbackAddr, Handler: callbacks.Routes()}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Storefront] Callback listener error: %v", err)
		}
	}()
	defer server.Shutdown(context.Background())

	a := &app{
		accounts:     auth.NewService(client, tokens),
		identity:     identity,
		engine:       cart.NewEngine(client),
		browser:      catalog.NewBrowser(client),
		orchestrator: checkout.NewOrchestrator(client, tokens, printNavigator{}, store),
		callbacks:    callbacks,
		stdin:        bufio.NewScanner(os.Stdin),
	}
	a.run()
}

func (a *app) run() {
	fmt.Println("Welcome to the store. Type `help` for commands.")
	for {
		fmt.Print("> ")
		if !a.stdin.Scan() {
			return
		}
		fields := strings.Fields(a.stdin.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := a.dispatch(cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func (a *app) dispatch(cmd string, args []string) error {
	ctx := context.Background()
	switch cmd {
	case "help":
		fmt.Print(`Commands:
  list [query]         search the catalog
  next / prev          page through results
  add <product> [qty]  add a product to the cart
  qty <product> <n>    set a line's quantity
  remove <item>        remove a line item
  cart                 show the cart
  login <email>        log in (prompts for password)
  register <email>     create an account (prompts for password)
  logout               log out (cart survives)
  checkout             pay for the cart
  quit                 leave
`)
		return nil
	case "list":
		return a.showPage(a.browser.Search(ctx, strings.Join(args, " ")))
	case "next":
		return a.showPage(a.browser.Next(ctx))
	case "prev":
		return a.showPage(a.browser.Prev(ctx))
	case "add":
		if len(args) < 1 {
			return errors.New("usage: add <product> [qty]")
		}
		quantity := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("bad quantity %q", args[1])
			}
			quantity = n
		}
		return a.mutate(ctx, func(cartID string) (api.Cart, error) {
			return a.engine.AddItem(ctx, cartID, args[0], quantity)
		})
	case "qty":
		if len(args) != 2 {
			return errors.New("usage: qty <product> <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad quantity %q", args[1])
		}
		return a.mutate(ctx, func(cartID string) (api.Cart, error) {
			return a.engine.SetItemQuantity(ctx, cartID, args[0], n)
		})
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove <item>")
		}
		return a.mutate(ctx, func(cartID string) (api.Cart, error) {
			return a.engine.RemoveItem(ctx, cartID, args[0])
		})
	case "cart":
		return a.mutate(ctx, func(cartID string) (api.Cart, error) {
			return a.engine.Fetch(ctx, cartID)
		})
	case "login":
		if len(args) != 1 {
			return errors.New("usage: login <email>")
		}
		if err := a.accounts.Login(ctx, args[0], a.prompt("Password: ")); err != nil {
			return err
		}
		fmt.Println("Logged in.")
		return nil
	case "register":
		if len(args) != 1 {
			return errors.New("usage: register <email>")
		}
		user, err := a.accounts.Register(ctx, args[0], a.prompt("Password: "))
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s. Log in with `login %s`.\n", user.Email, user.Email)
		return nil
	case "logout":
		a.accounts.Logout()
		fmt.Println("Logged out. Your cart is still here.")
		return nil
	case "checkout":
		return a.checkout(ctx)
	}
	return fmt.Errorf("unknown command %q, try `help`", cmd)
}

// mutate runs one cart operation, re-deriving a fresh cart id and
// retrying once if the server no longer recognizes the stored one.
func (a *app) mutate(ctx context.Context, op func(cartID string) (api.Cart, error)) error {
	cartID, err := a.identity.GetOrCreate(ctx)
	if err != nil {
		return err
	}
	view, err := op(cartID)
	if errors.Is(err, cart.ErrCartGone) {
		if cerr := a.identity.Clear(ctx); cerr != nil {
			return cerr
		}
		if cartID, err = a.identity.GetOrCreate(ctx); err != nil {
			return err
		}
		if view, err = op(cartID); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	printCart(view)
	return nil
}

func (a *app) checkout(ctx context.Context) error {
	cartID, err := a.identity.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	err = a.orchestrator.Checkout(ctx, cartID)
	if errors.Is(err, checkout.ErrAuthRequired) {
		fmt.Println("Please log in before checking out: `login <email>`.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("Waiting for the payment to finish (ctrl-c to abandon)...")
	select {
	case outcome := <-a.callbacks.Outcomes():
		if outcome.Success {
			fmt.Println("Payment successful! Thank you for your purchase.")
		} else {
			fmt.Println("Payment cancelled. Your items are still in your cart.")
		}
	case <-time.After(15 * time.Minute):
		fmt.Println("No payment outcome arrived; your cart is unchanged.")
	}
	return nil
}

func (a *app) showPage(page *api.ProductPage, err error) error {
	if err != nil {
		return err
	}
	for _, p := range page.Items {
		fmt.Printf("  [%s] %s - $%s\n", p.ID, p.Name, p.Price.StringFixed(2))
	}
	fmt.Printf("Page %d of %d (%d products)\n", a.browser.Page(), a.browser.TotalPages(), page.Total)
	return nil
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	if !a.stdin.Scan() {
		return ""
	}
	return a.stdin.Text()
}

func printCart(c api.Cart) {
	if len(c.Items) == 0 {
		fmt.Println("Your cart is empty.")
		return
	}
	fmt.Printf("Cart #%s\n", c.ID)
	for _, it := range c.Items {
		fmt.Printf("  [%s] %s - %d x $%s = $%s\n",
			it.ID, it.Product.Name, it.Quantity,
			it.Product.Price.StringFixed(2), it.Subtotal().StringFixed(2))
	}
	fmt.Printf("Total: $%s\n", c.Total().StringFixed(2))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
