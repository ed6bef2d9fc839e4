// services/driver_service.go
package services

import (
	"errors"
	"log"
	"strings"
	"unicode"

	"referral-ledger/eligibility"
	"referral-ledger/ledger"
	"referral-ledger/models"
	"referral-ledger/referral"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DriverService serves the driver dashboard and the admin driver screens.
// It never mutates counters; only install logging and redemption do.
type DriverService struct {
	Ledger          ledger.Ledger
	Payouts         *PayoutService
	Thresholds      eligibility.Thresholds
	ReferralBaseURL string
}

func NewDriverService(l ledger.Ledger, payouts *PayoutService, t eligibility.Thresholds, referralBaseURL string) *DriverService {
	return &DriverService{Ledger: l, Payouts: payouts, Thresholds: t, ReferralBaseURL: referralBaseURL}
}

// --- Presentation Handlers ---

// ListDrivers returns every driver record.
func (s *DriverService) ListDrivers(c *fiber.Ctx) error {
	drivers, err := s.Ledger.ListDrivers(c.UserContext())
	if err != nil {
		return ledgerError(c, "failed to load drivers", err)
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	return c.JSON(fiber.Map{"drivers": drivers})
}

// GetEligibility returns counters, progress and eligibility for one driver.
func (s *DriverService) GetEligibility(c *fiber.Ctx) error {
	d, err := s.Ledger.GetDriver(c.UserContext(), c.Params("id"))
	if err != nil {
		return ledgerError(c, "driver data not found", err)
	}
	return c.JSON(eligibility.Evaluate(d, s.Thresholds))
}

// GetPayoutHistory lists the milestones recorded for a driver.
func (s *DriverService) GetPayoutHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.Ledger.GetDriver(c.UserContext(), id); err != nil {
		return ledgerError(c, "driver data not found", err)
	}
	history, err := s.Payouts.History(c.UserContext(), id)
	if err != nil {
		log.Printf("DB Error loading payout history for %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load payout history"})
	}
	if history == nil {
		history = []models.PayoutMilestone{}
	}
	return c.JSON(fiber.Map{"driver_id": id, "payouts": history})
}

// GetReferralLink returns the shareable activation link (what the QR code encodes).
func (s *DriverService) GetReferralLink(c *fiber.Ctx) error {
	d, err := s.Ledger.GetDriver(c.UserContext(), c.Params("id"))
	if err != nil {
		return ledgerError(c, "driver data not found", err)
	}
	link, err := referral.BuildReferralLink(s.ReferralBaseURL, d.ID)
	if err != nil {
		log.Printf("❌ Invalid REFERRAL_BASE_URL %q: %v", s.ReferralBaseURL, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "referral link unavailable"})
	}
	return c.JSON(fiber.Map{"driver_id": d.ID, "link": link})
}

// --- Admin Handlers ---

type driverForm struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// name prefers an explicit name, else "first last", with whitespace collapsed.
func (f driverForm) name() string {
	name := f.Name
	if strings.TrimSpace(name) == "" {
		name = f.FirstName + " " + f.LastName
	}
	return titleCaser.String(strings.Join(strings.Fields(name), " "))
}

// id prefers an explicit id, else the phone number's digits.
func (f driverForm) id() string {
	if id := strings.TrimSpace(f.ID); id != "" {
		return id
	}
	return digitsOnly(f.Phone)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// CreateDriver adds a driver with zeroed counters (Admin only)
func (s *DriverService) CreateDriver(c *fiber.Ctx) error {
	var form driverForm
	if err := c.BodyParser(&form); err != nil {
		return badRequest(c, "Invalid request body", err)
	}
	name := form.name()
	if name == "" {
		return badRequest(c, "Driver name is required", nil)
	}
	d, err := s.Ledger.CreateDriver(c.UserContext(), models.Driver{ID: form.id(), Name: name})
	if err != nil {
		return ledgerError(c, "Failed to create driver", err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// UpdateDriver renames a driver, moving it to a new id when the form changes it (Admin only)
func (s *DriverService) UpdateDriver(c *fiber.Ctx) error {
	id := c.Params("id")
	var form driverForm
	if err := c.BodyParser(&form); err != nil {
		return badRequest(c, "Invalid request body", err)
	}
	newID := form.id()
	if newID == "" {
		newID = id
	}
	name := form.name()
	if name == "" {
		current, err := s.Ledger.GetDriver(c.UserContext(), id)
		if err != nil {
			return ledgerError(c, "Driver not found", err)
		}
		name = current.Name
	}
	d, err := s.Ledger.ReassignDriver(c.UserContext(), id, newID, name)
	if err != nil {
		return ledgerError(c, "Failed to update driver", err)
	}
	return c.JSON(d)
}

// DeleteDriver removes a driver (Admin only)
func (s *DriverService) DeleteDriver(c *fiber.Ctx) error {
	if err := s.Ledger.DeleteDriver(c.UserContext(), c.Params("id")); err != nil {
		return ledgerError(c, "Failed to delete driver", err)
	}
	return c.JSON(fiber.Map{"message": "Driver deleted successfully"})
}

// GetStats summarises all drivers for the admin stats screen
func (s *DriverService) GetStats(c *fiber.Ctx) error {
	drivers, err := s.Ledger.ListDrivers(c.UserContext())
	if err != nil {
		return ledgerError(c, "failed to load drivers", err)
	}
	var referrals, redemptions, eligible int64
	verdicts := make([]eligibility.Verdict, 0, len(drivers))
	for _, d := range drivers {
		v := eligibility.Evaluate(d, s.Thresholds)
		referrals += d.Referrals
		redemptions += d.Redemptions
		if v.Eligible {
			eligible++
		}
		verdicts = append(verdicts, v)
	}
	return c.JSON(fiber.Map{
		"total_drivers":     len(drivers),
		"total_referrals":   referrals,
		"total_redemptions": redemptions,
		"eligible_drivers":  eligible,
		"thresholds":        s.Thresholds,
		"drivers":           verdicts,
	})
}

// MarkPayoutPaid flags a payout milestone as paid (Admin only)
func (s *DriverService) MarkPayoutPaid(c *fiber.Ctx) error {
	pm, err := s.Payouts.MarkPaid(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrMilestoneNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout milestone not found"})
		}
		log.Printf("DB Error marking payout paid: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update payout"})
	}
	return c.JSON(pm)
}
