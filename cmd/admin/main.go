package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/dispatch"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/models"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  create-user <name> <customer|seller|admin> [telegram_id]
  create-listing <seller_id> <asking_price> <title> [feature,feature,...]
  show <message_id>
  thread <thread_id>
  confirm <message_id> <admin_user_id>`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	storageSvc := storage.NewStorageService(db, rdb, logger.NewNop())
	ctx := context.Background()
	args := os.Args[2:]

	switch command := os.Args[1]; command {
	case "create-user":
		if len(args) < 2 {
			exitUsage()
		}
		user, err := createUser(ctx, storageSvc, args)
		if err != nil {
			log.Fatalf("Error creating user: %v", err)
		}
		fmt.Printf("User %s (%s) created.\n", user.ID, user.Role)
	case "create-listing":
		if len(args) < 3 {
			exitUsage()
		}
		listing, err := createListing(ctx, storageSvc, args)
		if err != nil {
			log.Fatalf("Error creating listing: %v", err)
		}
		fmt.Printf("Listing %s created at %s.\n", listing.ID, offer.FormatINR(listing.AskingPrice))
	case "show":
		if len(args) != 1 {
			exitUsage()
		}
		if err := showMessage(ctx, storageSvc, args[0]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "thread":
		if len(args) != 1 {
			exitUsage()
		}
		if err := printThread(ctx, storageSvc, args[0]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "confirm":
		if len(args) != 2 {
			exitUsage()
		}
		id, err := parseMessageID(args[0])
		if err != nil {
			log.Fatal(err)
		}
		d := dispatch.NewDispatcher(storageSvc, offer.Policy{BuyerMayCounter: cfg.Offer.BuyerMayCounter}, cfg.Offer.InFlightTTL, logger.NewNop())
		res, err := d.Respond(ctx, dispatch.Request{MessageID: id, ActorID: args[1], Kind: models.ResponseConfirmed})
		if err != nil {
			log.Fatalf("Error confirming offer: %v", err)
		}
		if res.Replayed {
			fmt.Printf("Offer %d was already confirmed.\n", id)
			return
		}
		fmt.Printf("Offer %d confirmed at %s.\n", id, offer.FormatINR(res.Message.Offer.OfferPrice))
	default:
		fmt.Printf("Unknown command %q\n\n", command)
		exitUsage()
	}
}

func exitUsage() {
	fmt.Println(usage)
	os.Exit(1)
}

func parseMessageID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return uint(id), nil
}

func createUser(ctx context.Context, s storage.Storage, args []string) (*models.User, error) {
	role := models.Role(args[1])
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", args[1])
	}
	user := &models.User{Name: args[0], Role: role, Language: "en"}
	if len(args) > 2 {
		tgID, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram id %q", args[2])
		}
		user.TelegramID = tgID
	}
	return user, s.SaveUser(ctx, user)
}

func createListing(ctx context.Context, s storage.Storage, args []string) (*models.Listing, error) {
	seller, err := s.GetUserByID(ctx, args[0])
	if err != nil {
		return nil, err
	}
	if seller.Role != models.RoleSeller {
		return nil, fmt.Errorf("user %s is not a seller", seller.ID)
	}
	price, err := offer.ParseAmount(args[1])
	if err != nil {
		return nil, err
	}
	listing := &models.Listing{SellerID: seller.ID, AskingPrice: price, Title: args[2]}
	if len(args) > 3 {
		listing.Features = pq.StringArray(strings.Split(args[3], ","))
	}
	return listing, s.SaveListing(ctx, listing)
}

func showMessage(ctx context.Context, s storage.Storage, raw string) error {
	id, err := parseMessageID(raw)
	if err != nil {
		return err
	}
	msg, err := s.FindMessageByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("message:  %d\nthread:   %s\nsender:   %s\ntype:     %s\n", msg.ID, msg.ThreadID, msg.SenderID, msg.Type)
	if !msg.IsOffer() {
		fmt.Printf("content:  %s\n", msg.Content)
		return nil
	}
	fmt.Printf("amount:   %s\nstatus:   %s\nfrom:     %s\n", offer.FormatINR(msg.Offer.OfferPrice), msg.Offer.Status, msg.Offer.Sender)
	if msg.Offer.CounterPrice != nil {
		fmt.Printf("previous: %s\n", offer.FormatINR(*msg.Offer.CounterPrice))
	}
	if kind, held, err := s.InFlightResponse(ctx, msg.ID); err == nil && held {
		fmt.Printf("in flight: %s\n", kind)
	}
	return nil
}

func printThread(ctx context.Context, s storage.Storage, threadID string) error {
	thread, err := s.GetThreadByID(ctx, threadID)
	if err != nil {
		return err
	}
	messages, err := s.GetTranscript(ctx, thread.ThreadID)
	if err != nil {
		return err
	}

	fmt.Printf("thread %s  listing %s  buyer %s  seller %s  active %t\n\n",
		thread.ThreadID, thread.ListingID, thread.BuyerID, thread.SellerID, thread.IsActive)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tFROM\tTYPE\tAMOUNT\tPREVIOUS\tSTATUS\tTEXT")
	for _, m := range messages {
		amount, previous, status := "", "", ""
		if m.IsOffer() {
			amount = offer.FormatINR(m.Offer.OfferPrice)
			if m.Offer.CounterPrice != nil {
				previous = offer.FormatINR(*m.Offer.CounterPrice)
			}
			status = string(m.Offer.Status)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.CreatedAt.Format("2006-01-02 15:04"), m.SenderID, m.Type, amount, previous, status, m.Content)
	}
	return w.Flush()
}
