package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	domainauth "github.com/siprak/portal/internal/domain/auth"
)

func runLogin(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	snap, _ := s.Session.Snapshot()
	return writef(cmdCtx.Out, "signed in as %s (%s)\n", snap.Email(), snap.SubjectID())
}

func runWhoAmI(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	snap, ok := s.Session.Snapshot()
	if !ok {
		return errors.New("no active session")
	}
	return printSnapshot(cmdCtx.Out, snap)
}

func printSnapshot(w io.Writer, snap domainauth.Snapshot) error {
	profile := snap.Profile()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Subject", snap.SubjectID()},
		{"Email", snap.Email()},
		{"Name", profile.FullName},
	}
	if profile.NimNip != nil && *profile.NimNip != "" {
		rows = append(rows, [2]string{"NIM/NIP", *profile.NimNip})
	}
	if primary, ok := snap.PrimaryRole(); ok {
		rows = append(rows, [2]string{"Primary role", string(primary)})
	}
	roles := make([]string, 0)
	for _, r := range snap.Roles() {
		roles = append(roles, string(r.Code))
	}
	rows = append(rows, [2]string{"Roles", joinOrNone(roles)})
	perms := snap.Permissions()
	sort.Strings(perms)
	rows = append(rows, [2]string{"Permissions", joinOrNone(perms)})

	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func runRegister(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	name := fs.String("name", "", "Full name")
	nimNip := fs.String("nim-nip", "", "Student (NIM) or staff (NIP) number")
	role := fs.String("role", string(domainauth.RoleStudent), "Role code: ADMIN, LECTURER, STUDENT or LAB_STAFF")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := creds.credentials()
	if err != nil {
		return err
	}
	code, ok := domainauth.ParseRoleCode(*role)
	if !ok {
		return fmt.Errorf("unknown role %q", *role)
	}

	s, err := openSession(cmdCtx)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	id, err := s.Session.Register(cmdCtx.Ctx, domainauth.RegisterData{
		Credentials: c,
		FullName:    *name,
		NimNip:      *nimNip,
		Role:        code,
	})
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "registered %s as %s (%s)\n", c.Email, code, id)
}

func runResetPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(cmdCtx)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	if err := s.Session.ResetPassword(cmdCtx.Ctx, *email); err != nil {
		return err
	}
	return writeln(cmdCtx.Out, "if the address is registered, a reset link is on its way")
}

// profileFlags collects optional profile edits; only flags that were set end up in the patch.
type profileFlags struct {
	username, fullName, nimNip, phone, avatar, address, birthDate string
}

func (p *profileFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.username, "username", "", "Username")
	fs.StringVar(&p.fullName, "name", "", "Full name")
	fs.StringVar(&p.nimNip, "nim-nip", "", "NIM or NIP")
	fs.StringVar(&p.phone, "phone", "", "Phone number")
	fs.StringVar(&p.avatar, "avatar-url", "", "Avatar URL")
	fs.StringVar(&p.address, "address", "", "Postal address")
	fs.StringVar(&p.birthDate, "birth-date", "", "Birth date (YYYY-MM-DD)")
}

func (p *profileFlags) patch(fs *flag.FlagSet) (domainauth.ProfilePatch, error) {
	var patch domainauth.ProfilePatch
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "username":
			patch.Username = &p.username
		case "name":
			patch.FullName = &p.fullName
		case "nim-nip":
			patch.NimNip = &p.nimNip
		case "phone":
			patch.Phone = &p.phone
		case "avatar-url":
			patch.AvatarURL = &p.avatar
		case "address":
			patch.Address = &p.address
		case "birth-date":
			d, err := time.Parse(time.DateOnly, p.birthDate)
			if err != nil {
				parseErr = fmt.Errorf("invalid --birth-date: %w", err)
				return
			}
			patch.BirthDate = &d
		}
	})
	if parseErr != nil {
		return domainauth.ProfilePatch{}, parseErr
	}
	if patch.Empty() {
		return patch, errors.New("nothing to update")
	}
	return patch, nil
}

func runUpdateProfile(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("update-profile", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	var edits profileFlags
	edits.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	patch, err := edits.patch(fs)
	if err != nil {
		return err
	}

	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	if err := s.Session.UpdateProfile(cmdCtx.Ctx, patch); err != nil {
		return err
	}
	snap, _ := s.Session.Snapshot()
	return printSnapshot(cmdCtx.Out, snap)
}
