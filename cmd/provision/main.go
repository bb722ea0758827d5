package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/academico/internal/app"
	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/config"
	"github.com/gestaozabele/academico/internal/identity"
	"github.com/gestaozabele/academico/internal/reference"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "hash" {
		if err := runHash(args); err != nil {
			log.Fatal().Err(err).Msg("falha ao gerar hash")
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config inválida")
	}

	ctx := context.Background()
	rt, err := app.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível abrir dependências")
	}
	defer rt.Close()

	switch cmd {
	case "admin":
		identities := identity.NewService(identity.NewRepository(rt.Pool), rt.IDs, rt.Bus, app.DefaultPasswords(cfg), log.Logger)
		err = runAdmin(ctx, identities, args)
	case "reference":
		err = runReference(ctx, reference.NewSource(reference.NewRepository(rt.Pool), rt.Bus, log.Logger), args)
	case "reconcile":
		err = runReconcile(ctx, reference.NewEngine(reference.NewRepository(rt.Pool), rt.Bus, log.Logger))
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("falha")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "provision CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  provision admin --first Maria --last Silva --email maria@universidade.edu [--password segredo]")
	fmt.Fprintln(os.Stderr, "  provision reference --kind academic-semester --title Autumn --year 2024 --code 01 --start January --end May")
	fmt.Fprintln(os.Stderr, "  provision reference --kind academic-department --title Computação --parent <syncId da faculdade>")
	fmt.Fprintln(os.Stderr, "  provision reconcile")
	fmt.Fprintln(os.Stderr, "  provision hash <senha>")
}

func runHash(args []string) error {
	if len(args) < 1 {
		return errors.New("informe a senha")
	}
	hash, err := auth.Hash(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runAdmin(ctx context.Context, identities *identity.Service, args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		first       = fs.String("first", "", "primeiro nome")
		middle      = fs.String("middle", "", "nome do meio")
		last        = fs.String("last", "", "sobrenome")
		email       = fs.String("email", "", "e-mail usado na recuperação de senha")
		designation = fs.String("designation", "Administrador", "cargo")
		password    = fs.String("password", "", "senha inicial (padrão: DEFAULT_ADMIN_PASSWORD)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *first == "" || *last == "" {
		return errors.New("first e last são obrigatórios")
	}

	created, err := identities.Provision(ctx, identity.RoleAdmin, identity.ProfileInput{
		Name:        identity.Name{First: *first, Middle: *middle, Last: *last},
		Email:       *email,
		Designation: *designation,
	}, identity.IdentityInput{Password: *password})
	if err != nil {
		return err
	}

	return printJSON(created)
}

func runReference(ctx context.Context, source *reference.Source, args []string) error {
	fs := flag.NewFlagSet("reference", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		kind   = fs.String("kind", "", "academic-semester | academic-faculty | academic-department")
		title  = fs.String("title", "", "título")
		year   = fs.String("year", "", "ano do semestre")
		code   = fs.String("code", "", "código do semestre (01, 02, 03)")
		start  = fs.String("start", "", "mês de início")
		end    = fs.String("end", "", "mês de término")
		parent = fs.String("parent", "", "syncId da faculdade (departamentos)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	entity, err := source.Create(ctx, reference.Kind(*kind), reference.SourceInput{
		Title:        *title,
		Year:         *year,
		Code:         *code,
		StartMonth:   *start,
		EndMonth:     *end,
		ParentSyncID: *parent,
	})
	if err != nil {
		return err
	}
	return printJSON(entity)
}

func runReconcile(ctx context.Context, engine *reference.Engine) error {
	n, err := engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("attached", n).Msg("reconciliação concluída")
	return nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
