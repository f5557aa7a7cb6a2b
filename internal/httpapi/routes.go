package httpapi

import "github.com/gin-gonic/gin"

const (
	APIRoutePrefix = "/api/ezinfo"

	apiPathApply         = "/apply"
	apiPathAdminLogin    = "/admin/login"
	apiPathSubmissions   = "/admin/submissions"
	apiPathUpdate        = "/touchpoint/update"
	apiPathEvent         = "/event"
	apiPathOfferClaim    = "/offer/claim"
	apiPathSurveySubmit  = "/survey/submit"
	apiPathReviewRewrite = "/ai/rewrite"

	PageRoutePath     = "/ezinfo/:slug"
	pagePathSurvey    = PageRoutePath + "/survey"
	pagePathCompose   = PageRoutePath + "/compose"
	pagePathOfferForm = PageRoutePath + "/offer"
)

// RegisterAPIRoutes mounts the JSON endpoints on group. The visitor-facing endpoints
// (apply, event, offer claim, survey submit, rewrite) run behind visitorMiddleware.
func RegisterAPIRoutes(group gin.IRoutes, handlers *APIHandlers, visitorMiddleware ...gin.HandlerFunc) {
	visitor := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, visitorMiddleware...), handler)
	}
	group.POST(apiPathApply, visitor(handlers.Apply)...)
	group.POST(apiPathAdminLogin, handlers.AdminLogin)
	group.POST(apiPathSubmissions, handlers.Submissions)
	group.POST(apiPathUpdate, handlers.UpdateTouchpoint)
	group.POST(apiPathEvent, visitor(handlers.LogEvent)...)
	group.POST(apiPathOfferClaim, visitor(handlers.ClaimOffer)...)
	group.POST(apiPathSurveySubmit, visitor(handlers.SubmitSurvey)...)
	group.POST(apiPathReviewRewrite, visitor(handlers.RewriteReview)...)
}

// RegisterPageRoutes mounts the public touchpoint page and its form posts. Form posts run
// behind visitorMiddleware.
func RegisterPageRoutes(router gin.IRoutes, handlers *PageHandlers, visitorMiddleware ...gin.HandlerFunc) {
	visitor := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, visitorMiddleware...), handler)
	}
	router.GET(PageRoutePath, handlers.ShowTouchpoint)
	router.POST(pagePathSurvey, visitor(handlers.SurveyStep)...)
	router.POST(pagePathCompose, visitor(handlers.Compose)...)
	router.POST(pagePathOfferForm, visitor(handlers.ClaimOffer)...)
}
