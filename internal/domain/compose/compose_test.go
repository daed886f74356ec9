package compose_test

import (
	"testing"

	"github.com/reputor/reputor/internal/domain/compose"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/normalize"
	"github.com/reputor/reputor/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRenormalize(t *testing.T) {
	Convey("Given partial weights summing to 130", t, func() {
		weights := map[string]float64{
			rules.ComponentTenure:          30,
			rules.ComponentRating:          40,
			rules.ComponentSourceDiversity: 20,
			rules.ComponentEmployment:      40,
		}

		Convey("When re-normalized", func() {
			effective := compose.Renormalize(weights)

			Convey("Then the effective weights sum to exactly 100", func() {
				sum := 0.0
				for _, w := range effective {
					sum += w
				}
				So(sum, ShouldAlmostEqual, 100, 1e-9)
			})

			Convey("Then proportions are preserved", func() {
				So(effective[rules.ComponentRating]/effective[rules.ComponentTenure], ShouldAlmostEqual, 40.0/30.0, 1e-9)
			})
		})
	})

	Convey("Given degenerate weight vectors", t, func() {
		Convey("Then an all-zero vector yields an empty map", func() {
			So(compose.Renormalize(map[string]float64{rules.ComponentTenure: 0}), ShouldBeEmpty)
		})

		Convey("Then negative entries are treated as zero", func() {
			effective := compose.Renormalize(map[string]float64{
				rules.ComponentTenure: -10,
				rules.ComponentRating: 50,
			})
			So(effective[rules.ComponentTenure], ShouldEqual, 0)
			So(effective[rules.ComponentRating], ShouldEqual, 100)
		})
	})
}

func TestCompose(t *testing.T) {
	Convey("Given normalized components and even weights", t, func() {
		components := normalize.Components{
			Values: map[string]float64{
				rules.ComponentTenure: 80,
				rules.ComponentRating: 60,
			},
			RehireMultiplier: 1.0,
		}
		weights := map[string]float64{
			rules.ComponentTenure: 50,
			rules.ComponentRating: 50,
		}

		Convey("When composed without penalties", func() {
			result := compose.Compose(components, model.KindTrust, weights)

			Convey("Then the composite is the weighted mean", func() {
				So(result.Composite, ShouldAlmostEqual, 70, 1e-9)
			})

			Convey("Then the breakdown carries each contribution", func() {
				So(result.Breakdown[rules.ComponentTenure], ShouldAlmostEqual, 40, 1e-9)
				So(result.Breakdown[rules.ComponentRating], ShouldAlmostEqual, 30, 1e-9)
				So(result.Breakdown[rules.BreakdownRehireMultiplier], ShouldEqual, 1.0)
			})

			Convey("Then no fraud penalty key appears when the penalty is zero", func() {
				_, ok := result.Breakdown[rules.BreakdownFraudPenalty]
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a fraud penalty applies", func() {
			penalized := components
			penalized.FraudPenalty = 15
			result := compose.Compose(penalized, model.KindTrust, weights)

			Convey("Then the composite is strictly lower", func() {
				base := compose.Compose(components, model.KindTrust, weights)
				So(result.Composite, ShouldBeLessThan, base.Composite)
				So(result.Composite, ShouldAlmostEqual, 55, 1e-9)
			})

			Convey("Then the breakdown shows the penalty as negative", func() {
				So(result.Breakdown[rules.BreakdownFraudPenalty], ShouldEqual, -15)
			})
		})

		Convey("When the rehire bonus applies", func() {
			boosted := components
			boosted.RehireMultiplier = 1.1
			result := compose.Compose(boosted, model.KindTrust, weights)

			Convey("Then the weighted sum is scaled by the multiplier", func() {
				So(result.Composite, ShouldAlmostEqual, 77, 1e-9)
			})
		})

		Convey("When the adjusted value would leave the range", func() {
			Convey("Then a huge penalty clamps to zero, never negative", func() {
				sunk := components
				sunk.FraudPenalty = 1000
				So(compose.Compose(sunk, model.KindTrust, weights).Composite, ShouldEqual, 0)
			})

			Convey("Then a large multiplier clamps to 100", func() {
				maxed := normalize.Components{
					Values:           map[string]float64{rules.ComponentTenure: 100},
					RehireMultiplier: 2.0,
				}
				result := compose.Compose(maxed, model.KindTrust, map[string]float64{rules.ComponentTenure: 100})
				So(result.Composite, ShouldEqual, 100)
			})
		})

		Convey("When composed for an exposure-driven kind", func() {
			exposed := normalize.Components{
				Values: map[string]float64{
					rules.ComponentFraudExposure:      25,
					rules.ComponentDisputeExposure:    0,
					rules.ComponentBaselineDivergence: 50,
				},
				FraudPenalty:     15,
				RehireMultiplier: 1.1,
			}
			riskWeights := map[string]float64{
				rules.ComponentFraudExposure:      40,
				rules.ComponentDisputeExposure:    30,
				rules.ComponentBaselineDivergence: 30,
			}
			result := compose.Compose(exposed, model.KindRisk, riskWeights)

			Convey("Then the composite is the weighted exposure sum alone", func() {
				So(result.Composite, ShouldAlmostEqual, 25, 1e-9)
			})

			Convey("Then fraud keeps raising the composite through its component", func() {
				worse := exposed
				worse.Values = map[string]float64{
					rules.ComponentFraudExposure:      50,
					rules.ComponentDisputeExposure:    0,
					rules.ComponentBaselineDivergence: 50,
				}
				worse.FraudPenalty = 30
				So(compose.Compose(worse, model.KindRisk, riskWeights).Composite,
					ShouldBeGreaterThan, result.Composite)
			})

			Convey("Then the breakdown carries no cross-kind adjustment keys", func() {
				_, hasPenalty := result.Breakdown[rules.BreakdownFraudPenalty]
				So(hasPenalty, ShouldBeFalse)
				_, hasMultiplier := result.Breakdown[rules.BreakdownRehireMultiplier]
				So(hasMultiplier, ShouldBeFalse)
			})
		})

		Convey("When composed twice with identical inputs", func() {
			first := compose.Compose(components, model.KindTrust, weights)
			second := compose.Compose(components, model.KindTrust, weights)

			Convey("Then the results are identical", func() {
				So(second.Composite, ShouldEqual, first.Composite)
				So(second.Breakdown, ShouldResemble, first.Breakdown)
			})
		})
	})
}
