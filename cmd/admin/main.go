// Package main provides operator utilities for admins and author registration requests.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"soundcheck/internal/bootstrap"
	"soundcheck/internal/config"
	"soundcheck/internal/models"
	"soundcheck/internal/notifications"
	"soundcheck/internal/repository"
	"soundcheck/internal/service"
)

const usageText = `Usage:
  admin promote <email|username>                      - Promote user to admin
  admin demote <email|username>                       - Demote admin to reader
  admin list-admins                                   - List all admins
  admin requests [pending|approved|rejected|all]      - List registration requests
  admin approve <request_id> <admin_email> [comment]  - Approve a registration request
  admin reject <request_id> <admin_email> <comment>   - Reject a registration request`

type app struct {
	users         *service.UserService
	registrations *service.RegistrationService
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usageText)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	rt, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	defer rt.Close(context.Background())

	a, err := newApp(cfg, rt)
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}

	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, rt *bootstrap.Runtime) (*app, error) {
	mailer, err := notifications.NewMailer(cfg)
	if err != nil {
		return nil, err
	}
	users := repository.NewUserRepository(rt.DB)
	authors := repository.NewAuthorRepository(rt.DB)

	// Events still reach connected consoles through Redis; without Redis
	// there is no local hub to deliver to.
	publisher := notifications.NewAdminPublisher(notifications.NewNotifier(rt.Redis), nil)

	return &app{
		users: service.NewUserService(users, authors),
		registrations: service.NewRegistrationService(
			rt.DB,
			repository.NewRegistrationRequestRepository(rt.DB),
			users,
			authors,
			mailer,
			publisher,
			service.RegistrationConfig{
				AdminRecipients: cfg.AdminRecipients(),
				BaseURL:         cfg.BaseURL,
				MailTimeout:     cfg.MailSendTimeout(),
			},
		),
	}, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "promote":
		if len(args) < 2 {
			return fmt.Errorf("usage: admin promote <email|username>")
		}
		return a.setRole(ctx, args[1], models.RoleAdmin)
	case "demote":
		if len(args) < 2 {
			return fmt.Errorf("usage: admin demote <email|username>")
		}
		return a.setRole(ctx, args[1], models.RoleReader)
	case "list-admins":
		return a.listAdmins(ctx)
	case "requests":
		filter := "pending"
		if len(args) > 1 {
			filter = args[1]
		}
		return a.listRequests(ctx, filter)
	case "approve":
		if len(args) < 3 {
			return fmt.Errorf("usage: admin approve <request_id> <admin_email> [comment]")
		}
		return a.review(ctx, models.RegistrationStatusApproved, args[1], args[2], strings.Join(args[3:], " "))
	case "reject":
		if len(args) < 4 {
			return fmt.Errorf("usage: admin reject <request_id> <admin_email> <comment>")
		}
		return a.review(ctx, models.RegistrationStatusRejected, args[1], args[2], strings.Join(args[3:], " "))
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usageText)
	}
}

func (a *app) setRole(ctx context.Context, identifier string, role models.UserRole) error {
	user, err := a.users.SetRole(ctx, identifier, role)
	if err != nil {
		return err
	}
	fmt.Printf("User %s (ID: %d) is now %s\n", user.Username, user.ID, user.Role)
	return nil
}

func (a *app) listAdmins(ctx context.Context) error {
	admins, err := a.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		fmt.Println("No admins found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tBLOCKED")
	for _, u := range admins {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", u.ID, u.Username, u.Email, u.IsBlocked)
	}
	return w.Flush()
}

func (a *app) listRequests(ctx context.Context, filter string) error {
	var (
		page *models.RegistrationRequestPage
		err  error
	)
	if filter == "all" {
		page, err = a.registrations.ListAll(ctx, 1, 100)
	} else {
		status, perr := models.ParseRegistrationStatus(filter)
		if perr != nil {
			return perr
		}
		page, err = a.registrations.ListByStatus(ctx, status, 1, 100)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBMITTED\tEMAIL\tUSERNAME\tAUTHOR NAME\tSTATUS")
	for _, r := range page.Requests {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.UTC().Format(time.RFC3339), r.Email, r.Username, r.DisplayName(), r.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d of %d shown\n", len(page.Requests), page.Total)
	return nil
}

func (a *app) review(ctx context.Context, decision models.RegistrationStatus, rawID, adminEmail, comment string) error {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid request id %q", rawID)
	}

	var req *models.RegistrationRequest
	if decision == models.RegistrationStatusApproved {
		req, err = a.registrations.Approve(ctx, uint(id), comment, adminEmail)
	} else {
		req, err = a.registrations.Reject(ctx, uint(id), comment, adminEmail)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Registration request #%d (%s) %s\n", req.ID, req.Email, req.Status)
	return nil
}
