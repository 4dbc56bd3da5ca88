package lead_test

import (
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
	"github.com/ipeimoveis/crm-backend/internal/lead"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("Lead scoring", func() {
	Describe("Score", func() {
		It("scores each source band", func() {
			for source, want := range map[string]int{
				lead.SourceReferral: 30,
				lead.SourceWebsite:  25,
				lead.SourceWalkIn:   20,
				lead.SourceGoogle:   15,
				lead.SourcePhone:    15,
				lead.SourceFacebook: 10,
			} {
				dto := lead.CreateLeadDTO{FullName: "x", Source: source, InterestType: lead.InterestRent}
				// rent contributes the baseline 10
				Expect(lead.Score(dto)).To(Equal(want+10), "source %s", source)
			}
		})

		It("contributes nothing for an unknown source", func() {
			dto := lead.CreateLeadDTO{FullName: "x", Source: "billboard", InterestType: lead.InterestRent}
			Expect(lead.Score(dto)).To(Equal(10))
		})

		It("scores budget only when both bounds are present", func() {
			base := lead.CreateLeadDTO{FullName: "x", Source: lead.SourceFacebook, InterestType: lead.InterestRent}

			onlyMin := base
			onlyMin.BudgetMin = ptr(600000.0)
			Expect(lead.Score(onlyMin)).To(Equal(20))

			both := base
			both.BudgetMin = ptr(600000.0)
			both.BudgetMax = ptr(900000.0)
			Expect(lead.Score(both)).To(Equal(45))
		})

		It("tiers the budget contribution by the minimum", func() {
			base := lead.CreateLeadDTO{FullName: "x", Source: lead.SourceFacebook, InterestType: lead.InterestRent}

			high := base
			high.BudgetMin = ptr(500001.0)
			high.BudgetMax = ptr(800000.0)
			Expect(lead.Score(high)).To(Equal(10 + 25 + 10))

			mid := base
			mid.BudgetMin = ptr(300001.0)
			mid.BudgetMax = ptr(400000.0)
			Expect(lead.Score(mid)).To(Equal(10 + 15 + 10))

			low := base
			low.BudgetMin = ptr(100000.0)
			low.BudgetMax = ptr(200000.0)
			Expect(lead.Score(low)).To(Equal(10 + 10 + 10))
		})

		It("weights interest type", func() {
			base := lead.CreateLeadDTO{FullName: "x", Source: lead.SourceFacebook}

			sell := base
			sell.InterestType = lead.InterestSell
			Expect(lead.Score(sell)).To(Equal(10 + 25))

			buy := base
			buy.InterestType = lead.InterestBuy
			Expect(lead.Score(buy)).To(Equal(10 + 20))

			rent := base
			rent.InterestType = lead.InterestRent
			Expect(lead.Score(rent)).To(Equal(10 + 10))
		})

		It("rewards contact data and preferences", func() {
			dto := lead.CreateLeadDTO{
				FullName:            "x",
				Source:              lead.SourceFacebook,
				InterestType:        lead.InterestRent,
				Phone:               ptr("+55 11 99999-0000"),
				Email:               ptr("x@example.com"),
				PropertyPreferences: jsonb.Map{"neighborhood": "Centro"},
			}
			Expect(lead.Score(dto)).To(Equal(10 + 10 + 10 + 10 + 5))
		})

		It("caps the score at 100", func() {
			dto := lead.CreateLeadDTO{
				FullName:            "x",
				Source:              lead.SourceReferral,
				InterestType:        lead.InterestSell,
				BudgetMin:           ptr(600000.0),
				BudgetMax:           ptr(900000.0),
				Phone:               ptr("+55 11 99999-0000"),
				Email:               ptr("x@example.com"),
				PropertyPreferences: jsonb.Map{"neighborhood": "Centro"},
			}
			Expect(lead.Score(dto)).To(Equal(100))
		})
	})

	Describe("PriorityFor", func() {
		It("marks high scores high priority", func() {
			Expect(lead.PriorityFor(80, lead.SourceWebsite)).To(Equal("high"))
		})

		It("marks referrals high regardless of score", func() {
			Expect(lead.PriorityFor(10, lead.SourceReferral)).To(Equal("high"))
		})

		It("marks mid scores medium", func() {
			Expect(lead.PriorityFor(60, lead.SourceWebsite)).To(Equal("medium"))
			Expect(lead.PriorityFor(79, lead.SourceWebsite)).To(Equal("medium"))
		})

		It("marks the rest low", func() {
			Expect(lead.PriorityFor(59, lead.SourceWebsite)).To(Equal("low"))
		})
	})
})
