package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/data/repos/recommendation"
	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/candidate"
)

type Repos struct {
	Problems recommendation.ProblemRepo
	Cards    *recommendation.CardScheduler
	Profiles *recommendation.ProfileRepo
	Feedback *recommendation.FeedbackRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, rc config.RecommendConfig) Repos {
	log.Info("Wiring repos...")

	problems := recommendation.NewProblemRepo(db, log)
	domains := candidate.NewEnhancer(rc.TagDomains)
	return Repos{
		Problems: problems,
		Cards:    recommendation.NewCardScheduler(db, log),
		Profiles: recommendation.NewProfileRepo(db, log, problems, domains.Domains),
		Feedback: recommendation.NewFeedbackRepo(db, log),
	}
}
