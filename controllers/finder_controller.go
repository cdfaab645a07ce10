// controller/finder_controller.go
package controller

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/likexian/whois"
	"gorm.io/gorm"

	"mailfinder/discovery"
	"mailfinder/middleware"
	"mailfinder/models"
	"mailfinder/store"
	"mailfinder/utils"
)

type FinderController struct {
	DB       *gorm.DB
	Runner   *utils.FinderRunner
	Logger   *log.Logger
	MaxBatch int
	// FindTimeout bounds a synchronous single-contact lookup.
	FindTimeout time.Duration
	Whois       func(domain string, servers ...string) (string, error)
}

func NewFinderController(db *gorm.DB, runner *utils.FinderRunner, maxBatch int, logger *log.Logger) *FinderController {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &FinderController{
		DB:          db,
		Runner:      runner,
		Logger:      logger,
		MaxBatch:    maxBatch,
		FindTimeout: 2 * time.Minute,
		Whois:       whois.Whois,
	}
}

// ContactInput is one person to find an address for.
type ContactInput struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Domain          string `json:"domain" validate:"required_without=Website,omitempty,max=253"`
	Website         string `json:"website" validate:"omitempty,max=2048"`
	ProvidedAddress string `json:"provided_address" validate:"omitempty,email"`
}

func (in ContactInput) contact() models.Contact {
	return models.Contact{
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Domain:          strings.TrimSpace(in.Domain),
		Website:         strings.TrimSpace(in.Website),
		ProvidedAddress: strings.ToLower(strings.TrimSpace(in.ProvidedAddress)),
	}
}

type CreateRunInput struct {
	Name     string         `json:"name" validate:"max=200"`
	Contacts []ContactInput `json:"contacts" validate:"required,min=1,dive"`
}

// FindEmail resolves one contact synchronously.
func (fc *FinderController) FindEmail(c *fiber.Ctx) error {
	var input ContactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	contact := input.contact()
	record := contact.ToRecord()

	ctx, cancel := context.WithTimeout(c.UserContext(), fc.FindTimeout)
	defer cancel()

	stats, err := fc.Runner.FindOne(ctx, record)
	if err != nil {
		fc.Logger.Printf("Find failed for %s %s at %s: %v", record.FirstName, record.LastName, record.Domain, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return utils.ErrorResponse(c, fiber.StatusGatewayTimeout, "Lookup timed out", err)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Lookup failed", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"contact": record,
		"stats":   stats,
	}))
}

// CreateRun persists a batch and processes it in the background.
func (fc *FinderController) CreateRun(c *fiber.Ctx) error {
	clientID := middleware.ClientID(c)

	var input CreateRunInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", err)
	}
	if len(input.Contacts) > fc.MaxBatch {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Too many contacts in one run", nil)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	name := input.Name
	if name == "" {
		name = "Finder run " + time.Now().Format("2006-01-02 15:04")
	}
	run := models.FinderRun{
		ClientID: clientID,
		Name:     name,
		Status:   models.RunPending,
		Total:    len(input.Contacts),
	}
	contacts := make([]models.Contact, len(input.Contacts))
	for i, in := range input.Contacts {
		contacts[i] = in.contact()
		// claimed by this run, so the polling worker leaves them alone
		contacts[i].Status = models.ContactProcessing
	}

	err := fc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		return store.SaveContacts(tx, &run.ID, clientID, contacts)
	})
	if err != nil {
		fc.Logger.Printf("Failed to create run: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create run", err)
	}

	go func() {
		if _, err := fc.Runner.RunContacts(context.Background(), &run, contacts); err != nil {
			fc.Logger.Printf("Run %d finished with errors: %v", run.ID, err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
		"message": "Run started",
		"run_id":  run.ID,
		"total":   run.Total,
	}))
}

// ListRuns returns the client's runs, newest first.
func (fc *FinderController) ListRuns(c *fiber.Ctx) error {
	clientID := middleware.ClientID(c)
	page, limit := utils.Pagination(c, 100)

	var total int64
	var runs []models.FinderRun
	query := fc.DB.Model(&models.FinderRun{}).Where("client_id = ?", clientID)
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list runs", err)
	}
	if err := query.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&runs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list runs", err)
	}

	return c.JSON(utils.PaginatedResponse{Data: runs, Total: total, Page: page, Limit: limit})
}

// GetRun returns a run with its contacts.
func (fc *FinderController) GetRun(c *fiber.Ctx) error {
	runID := utils.ParseUint(c.Params("id"))
	if runID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid run id", nil)
	}

	var run models.FinderRun
	err := fc.DB.Preload("Contacts").
		Where("id = ? AND client_id = ?", runID, middleware.ClientID(c)).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Run not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load run", err)
	}

	return c.JSON(utils.SuccessResponse(run))
}

// GetDomain returns what the finder knows about a domain plus its WHOIS record.
func (fc *FinderController) GetDomain(c *fiber.Ctx) error {
	domain := discovery.NormalizeDomain(c.Params("domain"))
	if !discovery.ValidDomain(domain) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid domain", nil)
	}
	keys := domainLookupKeys(domain)
	domain = keys[len(keys)-1]

	response := fiber.Map{
		"domain":      domain,
		"mail_domain": keys[0],
		"free_mail":   fc.Runner.Rules.IsFreeMail(domain),
	}

	if fc.DB != nil {
		for _, key := range keys {
			var record models.DomainRecord
			err := fc.DB.Where("domain = ?", key).First(&record).Error
			if err == nil {
				response["state"] = record
				break
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				fc.Logger.Printf("Failed to load domain %s: %v", key, err)
				break
			}
		}
	}

	if fc.Whois != nil {
		info, err := fc.Whois(domain)
		if err != nil {
			response["whois_error"] = err.Error()
		} else {
			response["whois"] = info
		}
	}

	return c.JSON(utils.SuccessResponse(response))
}

// domainLookupKeys lists the stored-state keys for a normalized domain: the
// domain itself, then its registrable parent when that differs.
func domainLookupKeys(domain string) []string {
	registrable := discovery.RegistrableDomain(domain)
	if registrable == "" || registrable == domain {
		return []string{domain}
	}
	return []string{domain, registrable}
}
