// Command jobsctl drives the client core against a running API. It is the
// thinnest possible presentation layer: one flow per invocation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/geocoder89/expertjobs/internal/app"
	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/directory/httpclient"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/geocoder89/expertjobs/internal/submission"
)

const usage = `usage: jobsctl <command> [flags]

commands:
  jobs           list jobs, newest first
  register       create an account and profile
  reset          send a password reset mail
  post           post a job (employer)
  close          stop a job taking applications (employer)
  apply          apply to a job
  applications   list your applications, or those to your jobs
  review         approve or reject an application (employer)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	client := httpclient.NewClient(cfg.DirectoryURL)
	client.SetRateLimit(cfg.DirectoryMaxRPS)

	a := app.New(client, app.Options{Logger: log, RedirectDelay: cfg.SubmissionRedirectDelay})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, a, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

type credentials struct {
	email, password, role *string
}

func credentialFlags(fs *flag.FlagSet) credentials {
	return credentials{
		email:    fs.String("email", "", "account email"),
		password: fs.String("password", "", "account password"),
		role:     fs.String("role", string(identity.RoleEmployee), "employee or employer"),
	}
}

func (c credentials) signIn(ctx context.Context, a *app.App) error {
	_, err := a.SignIn(ctx, *c.email, *c.password, identity.Role(*c.role))
	return err
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "jobs":
		fs.Parse(args)
		if err := a.LoadJobs(ctx); err != nil {
			return err
		}
		snap := a.Catalog.Snapshot()
		for _, j := range snap.TopJobs {
			fmt.Printf("* %s\n", formatJob(j))
		}
		for _, j := range snap.Jobs {
			fmt.Println(formatJob(j))
		}
		return nil

	case "register":
		name := fs.String("name", "", "full name")
		confirm := fs.String("confirm", "", "repeat the password")
		creds := credentialFlags(fs)
		fs.Parse(args)

		id, err := a.Register(ctx, app.RegisterInput{
			FullName:        *name,
			Email:           *creds.email,
			Password:        *creds.password,
			ConfirmPassword: *confirm,
			Role:            identity.Role(*creds.role),
		})
		if err != nil {
			return err
		}
		fmt.Println("registered", id.UID)
		return nil

	case "reset":
		email := fs.String("email", "", "account email")
		fs.Parse(args)

		msg, err := a.ResetPassword(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	case "post":
		creds := credentialFlags(fs)
		title := fs.String("title", "", "job title")
		company := fs.String("company", "", "company")
		location := fs.String("location", "", "location")
		salary := fs.String("salary", "", "salary")
		fs.Parse(args)
		*creds.role = string(identity.RoleEmployer)

		if err := creds.signIn(ctx, a); err != nil {
			return err
		}
		j, err := a.PostJob(ctx, job.CreateJobRequest{Title: *title, Company: *company, Location: *location, Salary: *salary})
		if err != nil {
			return err
		}
		fmt.Println("posted", j.ID)
		return nil

	case "close":
		creds := credentialFlags(fs)
		id := fs.String("id", "", "job id")
		fs.Parse(args)
		*creds.role = string(identity.RoleEmployer)

		if err := creds.signIn(ctx, a); err != nil {
			return err
		}
		if err := a.CloseJob(ctx, *id); err != nil {
			return err
		}
		fmt.Println("closed", *id)
		return nil

	case "apply":
		creds := credentialFlags(fs)
		jobID := fs.String("job", "", "job id")
		form := submission.Form{}
		fs.StringVar(&form.ApplicantName, "name", "", "applicant name")
		fs.StringVar(&form.ApplicantEmail, "contact", "", "applicant email")
		fs.StringVar(&form.CompanyName, "company", "", "company name (employer applicants)")
		fs.StringVar(&form.ContactEmail, "company-email", "", "company email (employer applicants)")
		fs.StringVar(&form.Phone, "phone", "", "phone")
		fs.StringVar(&form.ResumeURL, "resume", "", "resume url")
		fs.Parse(args)

		if err := creds.signIn(ctx, a); err != nil {
			return err
		}
		if err := a.LoadJobs(ctx); err != nil {
			return err
		}

		var target *job.Job
		for _, j := range a.Catalog.Snapshot().Jobs {
			if j.ID == *jobID {
				target = &j
				break
			}
		}
		if target == nil {
			return fmt.Errorf("job %q not found", *jobID)
		}

		sub, err := a.Submit(ctx, a.NewAttempt(), form, *target)
		if err != nil {
			return err
		}
		fmt.Println("applied", sub.ID, sub.Status)
		return nil

	case "applications":
		creds := credentialFlags(fs)
		status := fs.String("status", "", "pending, approved or rejected")
		fs.Parse(args)

		if err := creds.signIn(ctx, a); err != nil {
			return err
		}
		if err := a.LoadApplications(ctx); err != nil {
			return err
		}
		for _, ap := range a.Catalog.FilterApplications(*status) {
			fmt.Printf("%s\t%s\t%s\t%s\n", ap.ID, ap.JobTitle, ap.Status, ap.AppliedAt)
		}
		return nil

	case "review":
		creds := credentialFlags(fs)
		id := fs.String("id", "", "application id")
		decision := fs.String("decision", "", "approve or reject")
		fs.Parse(args)
		*creds.role = string(identity.RoleEmployer)

		if err := creds.signIn(ctx, a); err != nil {
			return err
		}
		if err := a.LoadApplications(ctx); err != nil {
			return err
		}
		return a.ReviewApplication(ctx, *id, app.Decision(*decision))

	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func formatJob(j job.Job) string {
	return fmt.Sprintf("%s\t%s @ %s\t%s\t%s", j.ID, j.Title, j.Company, j.Location, j.CreatedAt)
}

func describe(err error) string {
	var authErr *directory.AuthError
	var storeErr *directory.StoreError
	var vErr *submission.ValidationError
	var formErr *app.FormError

	switch {
	case errors.As(err, &formErr):
		return formErr.Message
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.As(err, &vErr):
		return vErr.Error()
	case errors.As(err, &storeErr):
		return "request failed, try again: " + storeErr.Error()
	default:
		return err.Error()
	}
}
