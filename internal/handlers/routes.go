package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Routes bundles every handler mounted on the app
type Routes struct {
	Upload     *UploadHandler
	GDrive     *GDriveHandler
	Jobs       *JobsHandler
	Speakers   *SpeakersHandler
	Admin      *AdminHandler
	OAuth      *OAuthHandler
	Stream     *StreamHandler
	AdminToken string
}

// Mount registers the API routes on app
func (r *Routes) Mount(app *fiber.App) {
	app.Post("/jobs", r.Upload.Handle)
	app.Post("/jobs/gdrive", r.GDrive.Handle)
	app.Get("/jobs", r.Jobs.List)
	app.Get("/jobs/:id", r.Jobs.Get)
	app.Delete("/jobs/:id", r.Jobs.Delete)
	app.Post("/jobs/:id/reformat", r.Jobs.Reformat)

	app.Get("/jobs/:id/speakers", r.Speakers.List)
	app.Put("/jobs/:id/speakers", r.Speakers.Put)
	app.Delete("/jobs/:id/speakers/:label", r.Speakers.Delete)

	admin := app.Group("/admin", RequireAdmin(r.AdminToken))
	admin.Get("/jobs", r.Admin.ListJobs)
	admin.Post("/jobs/:id/force", r.Admin.Force)
	admin.Post("/sweep", r.Admin.Sweep)

	app.Get("/integrations/gdrive/connect", r.OAuth.Connect)
	app.Get("/integrations/gdrive/callback", r.OAuth.Callback)

	ws := app.Group("/ws", r.Stream.Upgrade)
	ws.Get("/stream", websocket.New(r.Stream.Record))
	ws.Get("/jobs/:id", websocket.New(r.Stream.Status))
}
