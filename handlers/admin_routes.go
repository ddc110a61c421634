package handlers

import (
	"coin-rewards-ledger/middleware"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes registers the admin panel routes under /admin.
func SetupAdminRoutes(app *fiber.App, svc *Services, adminUIDs []string) {
	log := svc.Log.WithField("component", "admin_routes")
	admin := app.Group("/admin",
		middleware.UserContextMiddleware(svc.Log),
		middleware.RequireAdmin(adminUIDs, svc.Log),
	)

	// users

	admin.Get("/users", func(c *fiber.Ctx) error {
		accounts, err := svc.Accounts.ListAccounts(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(accounts)
	})

	admin.Get("/users/:uid", func(c *fiber.Ctx) error {
		acct, err := svc.Accounts.GetAccount(c.UserContext(), c.Params("uid"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(acct)
	})

	admin.Put("/users/:uid/coins", func(c *fiber.Ctx) error {
		var body struct {
			Coins *int64 `json:"coins"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badBody(c, err)
		}
		if body.Coins == nil {
			return respondError(c, log, &services.ValidationError{Field: "coins", Message: "is required"})
		}
		balance, err := svc.Ledger.AdminSetCoins(c.UserContext(), c.Params("uid"), *body.Coins)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"uid": c.Params("uid"), "coins": balance})
	})

	admin.Get("/users/:uid/referrals", func(c *fiber.Ctx) error {
		refs, err := svc.Referrals.ListReferrals(c.UserContext(), c.Params("uid"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(refs)
	})

	admin.Post("/users/:uid/referrals/:referredUid/verify", func(c *fiber.Ctx) error {
		acct, changed, err := svc.Referrals.Verify(c.UserContext(), c.Params("uid"), c.Params("referredUid"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"changed": changed, "inviter": acct})
	})

	admin.Post("/users/:uid/referrals/:referredUid/unverify", func(c *fiber.Ctx) error {
		acct, changed, err := svc.Referrals.Unverify(c.UserContext(), c.Params("uid"), c.Params("referredUid"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"changed": changed, "inviter": acct})
	})

	// requests

	admin.Get("/withdrawals", func(c *fiber.Ctx) error {
		filter, err := requestFilter(c)
		if err != nil {
			return respondError(c, log, err)
		}
		reqs, err := svc.Withdrawals.List(c.UserContext(), filter)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(reqs)
	})

	admin.Post("/withdrawals/:id/approve", func(c *fiber.Ctx) error {
		req, err := svc.Withdrawals.Approve(c.UserContext(), c.Params("id"), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(req)
	})

	admin.Post("/withdrawals/:id/reject", func(c *fiber.Ctx) error {
		req, err := svc.Withdrawals.Reject(c.UserContext(), c.Params("id"), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(req)
	})

	admin.Get("/deposits", func(c *fiber.Ctx) error {
		filter, err := requestFilter(c)
		if err != nil {
			return respondError(c, log, err)
		}
		reqs, err := svc.Deposits.List(c.UserContext(), filter)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(reqs)
	})

	admin.Post("/deposits/:id/approve", func(c *fiber.Ctx) error {
		req, err := svc.Deposits.Approve(c.UserContext(), c.Params("id"), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(req)
	})

	admin.Post("/deposits/:id/reject", func(c *fiber.Ctx) error {
		req, err := svc.Deposits.Reject(c.UserContext(), c.Params("id"), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(req)
	})

	admin.Get("/video-promotions", func(c *fiber.Ctx) error {
		filter, err := requestFilter(c)
		if err != nil {
			return respondError(c, log, err)
		}
		promos, err := svc.Promotions.List(c.UserContext(), filter)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(promos)
	})

	admin.Post("/video-promotions/:id/accept", func(c *fiber.Ctx) error {
		promo, err := svc.Promotions.Accept(c.UserContext(), c.Params("id"), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(promo)
	})

	admin.Post("/video-promotions/:id/reject", func(c *fiber.Ctx) error {
		promo, err := svc.Promotions.Reject(c.UserContext(), c.Params("id"), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(promo)
	})

	admin.Post("/reconcile", func(c *fiber.Ctx) error {
		report, err := svc.Reconciler.RunOnce(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(report)
	})

	// settings

	admin.Get("/settings", func(c *fiber.Ctx) error {
		settings, err := svc.Settings.Current(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(settings)
	})

	admin.Put("/settings/rewards", func(c *fiber.Ctx) error {
		var in services.RewardsInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c, err)
		}
		settings, err := svc.Settings.UpdateRewards(c.UserContext(), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(settings)
	})

	admin.Put("/settings/ads/:adId", func(c *fiber.Ctx) error {
		var in services.AdInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c, err)
		}
		settings, err := svc.Settings.UpsertAd(c.UserContext(), c.Params("adId"), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(settings)
	})

	admin.Delete("/settings/ads/:adId", func(c *fiber.Ctx) error {
		settings, err := svc.Settings.DeleteAd(c.UserContext(), c.Params("adId"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(settings)
	})

	admin.Put("/settings/social-links/:task", func(c *fiber.Ctx) error {
		var in services.SocialLinkInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c, err)
		}
		settings, err := svc.Settings.SetSocialTaskLink(c.UserContext(), models.SocialTask(c.Params("task")), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(settings)
	})
}

func requestFilter(c *fiber.Ctx) (services.RequestFilter, error) {
	status := models.RequestStatus(c.Query("status"))
	if status != "" && status != models.StatusPending && !status.Terminal() {
		return services.RequestFilter{}, &services.ValidationError{Field: "status", Message: "is not a request status"}
	}
	return services.RequestFilter{Status: status, UserID: c.Query("user_id")}, nil
}
