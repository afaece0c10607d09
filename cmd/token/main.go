// token emite um JWT para chamadas à API em desenvolvimento e integrações internas.
//
// Uso: go run ./cmd/token -company <id> [-user <id>] [-role admin|emissor|fiscal]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/cte-api/pkg/config"
	"github.com/jhoicas/cte-api/pkg/jwt"
	"github.com/jhoicas/cte-api/pkg/logger"
)

func main() {
	company := flag.String("company", "", "empresa (obrigatório)")
	user := flag.String("user", "cli", "usuário")
	role := flag.String("role", jwt.RoleAdmin, "perfil: admin, emissor ou fiscal")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}
	log := logger.New(logger.Config{Env: "development", Level: cfg.App.LogLevel})

	if *company == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch *role {
	case jwt.RoleAdmin, jwt.RoleEmitter, jwt.RoleFiscal:
	default:
		log.Fatal().Str("perfil", *role).Msg("perfil desconhecido")
	}

	ttl := time.Duration(cfg.JWT.Expiration) * time.Minute
	tok, err := jwt.Generate(cfg.JWT.Secret, *user, *company, *role, cfg.JWT.Issuer, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("gerar token")
	}
	fmt.Println(tok)
}
