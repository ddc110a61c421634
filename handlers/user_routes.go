package handlers

import (
	"strings"

	"coin-rewards-ledger/middleware"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupUserRoutes registers the routes a signed-in user calls. The gateway
// forwards /api/v1/ledger/s/user/... as /user/...
func SetupUserRoutes(app *fiber.App, svc *Services) {
	log := svc.Log.WithField("component", "user_routes")
	user := app.Group("/user", middleware.UserContextMiddleware(svc.Log))

	user.Post("/account", func(c *fiber.Ctx) error {
		var body struct {
			ReferralCode string `json:"referral_code"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return badBody(c, err)
			}
		}
		acct, created, err := svc.Accounts.CreateAccount(c.UserContext(), middleware.Identity(c), strings.TrimSpace(body.ReferralCode))
		if err != nil {
			return respondError(c, log, err)
		}
		if created {
			return c.Status(fiber.StatusCreated).JSON(acct)
		}
		return c.JSON(acct)
	})

	user.Get("/account", func(c *fiber.Ctx) error {
		acct, err := svc.Accounts.GetAccount(c.UserContext(), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(acct)
	})

	user.Get("/settings", func(c *fiber.Ctx) error {
		settings, err := svc.Settings.Current(c.UserContext())
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{
			"ads":                 settings.Ads,
			"social_task_links":   settings.SocialTaskLinks,
			"daily_ad_view_limit": settings.DailyAdViewLimit,
			"coin_to_usd_rate":    settings.CoinToUSDRate,
			"payout_methods":      services.PayoutMethods,
		})
	})

	user.Post("/ads/:adId/watch", func(c *fiber.Ctx) error {
		var body struct {
			Kind models.AdKind `json:"kind"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badBody(c, err)
		}
		result, err := svc.Ledger.WatchAd(c.UserContext(), middleware.Identity(c).UID, c.Params("adId"), body.Kind)
		if err != nil {
			return respondError(c, log, err)
		}
		if result.Outcome == services.AdWatchLimitReached {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":  "daily ad limit reached",
				"result": result,
			})
		}
		return c.JSON(fiber.Map{
			"message": "You earned " + services.FormatCoins(result.RewardCoins),
			"result":  result,
		})
	})

	user.Post("/social-tasks/:task", func(c *fiber.Ctx) error {
		result, err := svc.Ledger.CompleteSocialTask(c.UserContext(), middleware.Identity(c).UID, models.SocialTask(c.Params("task")))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(result)
	})

	user.Get("/challenges", func(c *fiber.Ctx) error {
		views, err := svc.Challenges.Progress(c.UserContext(), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(views)
	})

	user.Post("/challenges/:category/:tier/collect", func(c *fiber.Ctx) error {
		result, err := svc.Challenges.Collect(c.UserContext(), middleware.Identity(c).UID, models.ChallengeCategory(c.Params("category")), c.Params("tier"))
		if err != nil {
			return respondError(c, log, err)
		}
		if !result.Collected {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":  "reward already collected",
				"result": result,
			})
		}
		return c.JSON(result)
	})

	user.Get("/referrals", func(c *fiber.Ctx) error {
		refs, err := svc.Referrals.ListReferrals(c.UserContext(), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(refs)
	})

	user.Post("/withdrawals", func(c *fiber.Ctx) error {
		var in services.WithdrawInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c, err)
		}
		req, err := svc.Withdrawals.Submit(c.UserContext(), middleware.Identity(c), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	user.Get("/withdrawals", func(c *fiber.Ctx) error {
		reqs, err := svc.Withdrawals.List(c.UserContext(), services.RequestFilter{UserID: middleware.Identity(c).UID})
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(reqs)
	})

	user.Post("/deposits", func(c *fiber.Ctx) error {
		var in services.DepositInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c, err)
		}
		// the receipt is optional and JSON submissions carry none
		if form, err := c.MultipartForm(); err == nil {
			if files := form.File["receipt"]; len(files) > 0 {
				in.Receipt = files[0]
			}
		}
		req, err := svc.Deposits.Submit(c.UserContext(), middleware.Identity(c), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	user.Get("/deposits", func(c *fiber.Ctx) error {
		reqs, err := svc.Deposits.List(c.UserContext(), services.RequestFilter{UserID: middleware.Identity(c).UID})
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(reqs)
	})

	user.Post("/video-promotions", func(c *fiber.Ctx) error {
		var in services.VideoPromotionInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c, err)
		}
		promo, err := svc.Promotions.Submit(c.UserContext(), middleware.Identity(c), in)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(promo)
	})

	user.Get("/video-promotions", func(c *fiber.Ctx) error {
		promos, err := svc.Promotions.ListForUser(c.UserContext(), middleware.Identity(c).UID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(promos)
	})
}
