package synth

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/reputor/reputor/internal/domain/model"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	archetypeDivisor   = 10
)

// Constants for archetype cases. Weighted so solid subjects dominate and
// flagged ones stay rare, roughly matching real population shape.
const (
	caseSteadyVeteran  = 0 // long tenure, strong references
	caseSolidPerformer = 1
	caseEarlyCareer    = 2 // short history, few references
	caseJobHopper      = 3 // many short stints
	caseDisputed       = 4 // unresolved disputes, mixed ratings
	caseFlagged        = 5 // fraud flags, rehire ineligible
)

// Per-archetype seeding ranges.
const (
	veteranJobsMin   = 2
	veteranJobsRange = 2
	veteranYearsMin  = 3.0
	veteranYearsMax  = 8.0
	veteranRefsMin   = 4
	veteranRefsRange = 6
	veteranRatingMin = 4.0

	hopperJobsMin    = 4
	hopperJobsRange  = 4
	hopperMonthsMin  = 2
	hopperMonthsMax  = 10
	earlyCareerYears = 1.5

	midRatingMin   = 3.0
	midRatingRange = 1.5
	lowRatingMin   = 1.5
	lowRatingRange = 2.0
	ratingMax      = 5.0

	behavioralMidpoint = 50.0
	behavioralSpread   = 30.0

	hoursPerYear = 24 * 365.25
)

var (
	roles         = []string{"site_engineer", "project_manager", "electrician", "foreman", "estimator", "safety_officer"}
	subIndustries = []string{"commercial_build", "civil_works", "residential", "industrial_fitout"}
	industries    = []string{"construction", "infrastructure"}
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, n).
func getRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

func pick(options []string) string {
	return options[getRandomInt(len(options))]
}

// subjectProfile is the fully generated signal plan for one subject. It is
// built in memory first so a subject is always written as a complete unit.
type subjectProfile struct {
	subjectID string
	scope     model.ScopeRefs

	employments []model.EmploymentRecord
	ratings     []float64
	sources     []string

	disputes        int
	disputeResolved int

	rehireEligible bool
	hasRehireFlag  bool

	fraudFlags int

	behavioral model.BehavioralVector
}

// generateProfile builds one synthetic subject from a weighted archetype.
func generateProfile(now time.Time) subjectProfile {
	employerID := "employer_" + uuid.New().String()[:8]
	p := subjectProfile{
		subjectID: uuid.New().String(),
		scope: model.ScopeRefs{
			Role:        pick(roles),
			SubIndustry: pick(subIndustries),
			Industry:    pick(industries),
			EmployerID:  employerID,
		},
		behavioral: randomBehavioral(),
	}

	switch archetype() {
	case caseSteadyVeteran:
		jobs := veteranJobsMin + getRandomInt(veteranJobsRange)
		seedEmployments(&p, now, jobs, veteranYearsMin+getRandomFloat()*(veteranYearsMax-veteranYearsMin), true)
		seedReferences(&p, veteranRefsMin+getRandomInt(veteranRefsRange), veteranRatingMin, ratingMax-veteranRatingMin)
		p.hasRehireFlag = true
		p.rehireEligible = true
	case caseSolidPerformer:
		seedEmployments(&p, now, 2, 2.0+getRandomFloat()*2.0, true)
		seedReferences(&p, 2+getRandomInt(4), midRatingMin, midRatingRange)
		p.hasRehireFlag = getRandomFloat() > 0.5
		p.rehireEligible = true
	case caseEarlyCareer:
		seedEmployments(&p, now, 1, earlyCareerYears*getRandomFloat(), true)
		seedReferences(&p, getRandomInt(2), midRatingMin, midRatingRange)
	case caseJobHopper:
		jobs := hopperJobsMin + getRandomInt(hopperJobsRange)
		months := float64(hopperMonthsMin + getRandomInt(hopperMonthsMax-hopperMonthsMin))
		seedEmployments(&p, now, jobs, months/12.0, getRandomFloat() > 0.3)
		seedReferences(&p, 1+getRandomInt(3), lowRatingMin, lowRatingRange)
		p.disputes = getRandomInt(2)
	case caseDisputed:
		seedEmployments(&p, now, 2, 1.0+getRandomFloat()*2.0, true)
		seedReferences(&p, 2+getRandomInt(3), lowRatingMin, lowRatingRange)
		p.disputes = 2 + getRandomInt(3)
		p.disputeResolved = getRandomInt(p.disputes)
		p.hasRehireFlag = true
		p.rehireEligible = false
	case caseFlagged:
		seedEmployments(&p, now, 1+getRandomInt(2), 0.5+getRandomFloat(), false)
		seedReferences(&p, getRandomInt(2), lowRatingMin, lowRatingRange)
		p.disputes = 1 + getRandomInt(3)
		p.fraudFlags = 1 + getRandomInt(3)
		p.hasRehireFlag = true
		p.rehireEligible = false
	}

	return p
}

// archetype picks a weighted archetype case. Steady and solid subjects take
// six of ten slots; flagged subjects take one.
func archetype() int {
	switch getRandomInt(archetypeDivisor) {
	case 0, 1, 2:
		return caseSteadyVeteran
	case 3, 4, 5:
		return caseSolidPerformer
	case 6:
		return caseEarlyCareer
	case 7:
		return caseJobHopper
	case 8:
		return caseDisputed
	default:
		return caseFlagged
	}
}

// seedEmployments appends jobs back-to-back ending near now, each lasting
// yearsEach. The most recent job is left open-ended half the time.
func seedEmployments(p *subjectProfile, now time.Time, jobs int, yearsEach float64, verified bool) {
	if yearsEach <= 0 {
		yearsEach = 0.25
	}
	cursor := now
	for i := 0; i < jobs; i++ {
		span := time.Duration(yearsEach * hoursPerYear * float64(time.Hour))
		start := cursor.Add(-span)
		rec := model.EmploymentRecord{
			ID:         uuid.New().String(),
			EmployerID: p.scope.EmployerID,
			Start:      start,
			Verified:   verified,
		}
		if i > 0 || getRandomFloat() > 0.5 {
			end := cursor
			rec.End = &end
		}
		p.employments = append(p.employments, rec)
		cursor = start.Add(-30 * 24 * time.Hour)
	}
}

// seedReferences appends ratings in [base, base+spread] from distinct sources.
func seedReferences(p *subjectProfile, count int, base, spread float64) {
	for i := 0; i < count; i++ {
		rating := base + getRandomFloat()*spread
		if rating > ratingMax {
			rating = ratingMax
		}
		p.ratings = append(p.ratings, rating)
		p.sources = append(p.sources, "source_"+uuid.New().String()[:8])
	}
}

// randomBehavioral returns a vector centered on the midpoint with bounded
// spread, so baselines built from many subjects stay near 50 per dimension.
func randomBehavioral() model.BehavioralVector {
	var d [model.BehavioralDimensions]float64
	for i := range d {
		d[i] = behavioralMidpoint + (getRandomFloat()-0.5)*2*behavioralSpread
	}
	return model.FromDimensions(d)
}
