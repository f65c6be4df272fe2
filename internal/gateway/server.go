package gateway

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/streamops/streamops/internal/store"
	"github.com/streamops/streamops/pkg/api"
)

// Server is the HTTP surface over a Service. Public routes live under
// /api; the status-sync mutation endpoints live under /internal and
// are meant for the execution side, not end users.
type Server struct {
	app     *fiber.App
	service *Service
	logger  *slog.Logger
}

// NewServer builds the fiber app and registers all routes.
func NewServer(service *Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "StreamOps API Gateway",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	s := &Server{app: app, service: service, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.root)
	s.app.Get("/api/health", s.health)

	wf := s.app.Group("/api/workflows")
	wf.Post("/", s.createWorkflow)
	wf.Get("/", s.listWorkflows)
	wf.Get("/:id", s.getWorkflow)

	tasks := s.app.Group("/api/tasks")
	tasks.Post("/", s.createTask)
	tasks.Get("/", s.listTasks)
	tasks.Get("/:id", s.getTask)

	internal := s.app.Group("/internal")
	internal.Patch("/workflows/:id", s.patchWorkflow)
	internal.Patch("/tasks/:id", s.patchTask)
}

// App exposes the underlying fiber app, mainly for tests via app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("gateway listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

func (s *Server) root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "StreamOps API Gateway",
		"version": api.SchemaVersion,
		"status":  "running",
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) createWorkflow(c *fiber.Ctx) error {
	var in CreateWorkflowInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
	}

	wf, err := s.service.CreateWorkflow(c.Context(), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(wf)
}

func (s *Server) getWorkflow(c *fiber.Ctx) error {
	wf, err := s.service.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(wf)
}

func (s *Server) listWorkflows(c *fiber.Ctx) error {
	filter := store.WorkflowFilter{
		Status:   api.Status(c.Query("status")),
		Priority: api.Priority(c.Query("priority")),
		Limit:    c.QueryInt("limit"),
		Offset:   c.QueryInt("offset"),
	}

	list, err := s.service.ListWorkflows(c.Context(), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

func (s *Server) createTask(c *fiber.Ctx) error {
	var in CreateTaskInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
	}

	task, err := s.service.CreateTask(c.Context(), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (s *Server) getTask(c *fiber.Ctx) error {
	task, err := s.service.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(task)
}

func (s *Server) listTasks(c *fiber.Ctx) error {
	filter := store.TaskFilter{
		Status: api.Status(c.Query("status")),
		Type:   api.TaskType(c.Query("type")),
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}

	list, err := s.service.ListTasks(c.Context(), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

func (s *Server) patchWorkflow(c *fiber.Ctx) error {
	var patch api.WorkflowPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid patch body",
			"message": err.Error(),
		})
	}

	wf, err := s.service.UpdateWorkflow(c.Context(), c.Params("id"), patch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(wf)
}

func (s *Server) patchTask(c *fiber.Ctx) error {
	var patch api.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid patch body",
			"message": err.Error(),
		})
	}

	task, err := s.service.UpdateTask(c.Context(), c.Params("id"), patch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(task)
}

// fail maps service errors onto HTTP responses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case api.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": api.ValidationFields(err),
		})
	case api.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
			"id":    c.Params("id"),
		})
	case api.IsConflict(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Already exists",
			"id":    c.Params("id"),
		})
	case api.IsRejected(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid status patch",
			"message": err.Error(),
		})
	default:
		s.logger.Error("request failed",
			slog.String("path", c.Path()),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal server error",
			"message": err.Error(),
		})
	}
}
