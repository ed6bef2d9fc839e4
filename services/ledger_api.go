// services/ledger_api.go
package services

import (
	"errors"
	"log"
	"strings"

	"referral-ledger/ledger"
	"referral-ledger/models"

	"github.com/gofiber/fiber/v2"
)

// LedgerAPI exposes the remote ledger to device agents over HTTP.
type LedgerAPI struct {
	Ledger ledger.Ledger
}

func NewLedgerAPI(l ledger.Ledger) *LedgerAPI {
	return &LedgerAPI{Ledger: l}
}

// ledgerError answers with the status matching the ledger error class.
func ledgerError(c *fiber.Ctx, msg string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ledger.ErrInvalid):
		status = fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, ledger.ErrTransient):
		status = fiber.StatusServiceUnavailable
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [LEDGER_API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func (a *LedgerAPI) ListDrivers(c *fiber.Ctx) error {
	drivers, err := a.Ledger.ListDrivers(c.UserContext())
	if err != nil {
		return ledgerError(c, "failed to list drivers", err)
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	return c.JSON(fiber.Map{"drivers": drivers})
}

func (a *LedgerAPI) GetDriver(c *fiber.Ctx) error {
	d, err := a.Ledger.GetDriver(c.UserContext(), c.Params("id"))
	if err != nil {
		return ledgerError(c, "driver not found", err)
	}
	return c.JSON(d)
}

func (a *LedgerAPI) CreateDriver(c *fiber.Ctx) error {
	var req ledger.DriverRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	d, err := a.Ledger.CreateDriver(c.UserContext(), models.Driver{ID: req.ID, Name: req.Name})
	if err != nil {
		return ledgerError(c, "failed to create driver", err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// UpdateDriver renames the driver, or re-keys it when the body carries a different id.
func (a *LedgerAPI) UpdateDriver(c *fiber.Ctx) error {
	id := c.Params("id")
	var req ledger.DriverRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	if req.ID == "" {
		req.ID = id
	}
	if strings.TrimSpace(req.Name) == "" {
		current, err := a.Ledger.GetDriver(c.UserContext(), id)
		if err != nil {
			return ledgerError(c, "driver not found", err)
		}
		req.Name = current.Name
	}
	d, err := a.Ledger.ReassignDriver(c.UserContext(), id, req.ID, req.Name)
	if err != nil {
		return ledgerError(c, "failed to update driver", err)
	}
	return c.JSON(d)
}

func (a *LedgerAPI) DeleteDriver(c *fiber.Ctx) error {
	if err := a.Ledger.DeleteDriver(c.UserContext(), c.Params("id")); err != nil {
		return ledgerError(c, "failed to delete driver", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IncrementDriver credits one install or redemption; devices never move a counter by more than one.
func (a *LedgerAPI) IncrementDriver(c *fiber.Ctx) error {
	var req ledger.IncrementRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	if req.Delta != 1 {
		return badRequest(c, "delta must be 1", nil)
	}
	if err := a.Ledger.IncrementDriverCounter(c.UserContext(), c.Params("id"), req.Field, req.Delta); err != nil {
		return ledgerError(c, "increment failed", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *LedgerAPI) GetUser(c *fiber.Ctx) error {
	u, err := a.Ledger.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return ledgerError(c, "user not found", err)
	}
	return c.JSON(u)
}

func (a *LedgerAPI) SetUser(c *fiber.Ctx) error {
	var req ledger.UserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	rec := models.UserRecord{
		Referrer:    req.Referrer,
		InstallDate: req.InstallDate,
		HasRedeemed: req.HasRedeemed,
	}
	if err := a.Ledger.SetUser(c.UserContext(), c.Params("id"), rec); err != nil {
		return ledgerError(c, "failed to write user", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *LedgerAPI) PatchUser(c *fiber.Ctx) error {
	var patch models.UserPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	if err := a.Ledger.UpdateUser(c.UserContext(), c.Params("id"), patch); err != nil {
		return ledgerError(c, "failed to update user", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *LedgerAPI) CreditRedemption(c *fiber.Ctx) error {
	var req ledger.RedemptionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON", err)
	}
	credited, err := a.Ledger.CreditRedemption(c.UserContext(), c.Params("id"), req.DriverID)
	if err != nil {
		return ledgerError(c, "failed to credit redemption", err)
	}
	return c.JSON(ledger.RedemptionResponse{Credited: credited})
}
