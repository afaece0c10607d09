package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cte-api/internal/domain/repository"
	"github.com/jhoicas/cte-api/pkg/jwt"
)

// RouterDeps dependências do router.
type RouterDeps struct {
	CTe          CTeService
	Branches     repository.BranchRepository
	Downloader   Downloader
	Importer     Importer
	Certificates CertificateValidator
	JWTSecret    string
}

// Router registra as rotas da API. Todas exigem Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	emitters := RequireRole(jwt.RoleAdmin, jwt.RoleEmitter)
	fiscal := RequireRole(jwt.RoleAdmin, jwt.RoleFiscal)
	anyRole := RequireRole(jwt.RoleAdmin, jwt.RoleEmitter, jwt.RoleFiscal)

	// CT-e emitidos
	ctes := api.Group("/ctes")
	cteHandler := NewCTeHandler(deps.CTe)
	ctes.Post("/", emitters, cteHandler.Issue)
	ctes.Get("/:key/status", anyRole, cteHandler.Status)
	ctes.Post("/:key/cancel", emitters, cteHandler.Cancel)
	ctes.Get("/:key/dacte", anyRole, cteHandler.DACTE)

	// Documentos recebidos
	inboundHandler := NewInboundHandler(deps.Branches, deps.Downloader, deps.Importer)
	branches := api.Group("/branches")
	branches.Post("/:id/dfe/download", fiscal, inboundHandler.Download)
	api.Post("/inbound/import", fiscal, inboundHandler.Import)

	// Certificado A1
	certHandler := NewCertificateHandler(deps.Branches, deps.Certificates)
	branches.Get("/:id/certificate", RequireRole(jwt.RoleAdmin), certHandler.Validate)
}
