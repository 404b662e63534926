// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fieldbook/ppv-settlement/internal/i18n"
	"github.com/fieldbook/ppv-settlement/internal/services"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

type errorMapping struct {
	target error
	status int
	code   string
	key    string
}

var serviceErrors = []errorMapping{
	{services.ErrQuestionNotFound, http.StatusNotFound, "NOT_FOUND", i18n.KeyQuestionNotFound},
	{services.ErrAnswerNotFound, http.StatusNotFound, "NOT_FOUND", i18n.KeyAnswerNotFound},
	{services.ErrPoolNotFound, http.StatusNotFound, "NOT_FOUND", i18n.KeyPoolNotFound},
	{services.ErrAlreadyPurchased, http.StatusConflict, "CONFLICT", i18n.KeyAlreadyPurchased},
	{services.ErrBestAnswerChosen, http.StatusConflict, "CONFLICT", i18n.KeyBestAnswerChosen},
	{services.ErrHoldCaptured, http.StatusConflict, "CONFLICT", i18n.KeyHoldCaptured},
	{services.ErrInvalidAmount, http.StatusBadRequest, "BAD_REQUEST", i18n.KeyInvalidAmount},
	{services.ErrOwnQuestion, http.StatusBadRequest, "BAD_REQUEST", i18n.KeyOwnQuestion},
	{services.ErrPPVDisabled, http.StatusBadRequest, "BAD_REQUEST", i18n.KeyPPVDisabled},
	{services.ErrNoBounty, http.StatusBadRequest, "BAD_REQUEST", i18n.KeyNoBounty},
	{services.ErrAnswerBlocked, http.StatusBadRequest, "BAD_REQUEST", i18n.KeyAnswerBlocked},
	{services.ErrInvalidSignature, http.StatusBadRequest, "BAD_REQUEST", i18n.KeyInvalidSignature},
	{services.ErrNotAsker, http.StatusForbidden, "FORBIDDEN", i18n.KeyNotAsker},
	{services.ErrProcessorFailure, http.StatusBadGateway, "PROCESSOR_ERROR", i18n.KeyProcessorFailure},
}

// respondError maps service sentinels onto HTTP errors. Anything unknown is a
// 500 with a generic message; the detail only goes to the log.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			message := i18n.T(lang, m.key)
			switch m.status {
			case http.StatusConflict:
				utils.ConflictResponse(c, message)
			case http.StatusBadGateway:
				logrus.WithError(err).WithField("path", c.FullPath()).Error("Upstream failure")
				utils.BadGatewayResponse(c, message)
			default:
				utils.ErrorResponse(c, m.status, m.code, message, nil)
			}
			return
		}
	}

	logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	utils.InternalErrorResponse(c, "")
}

// bindJSON decodes and validates the body, writing the error response itself.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "input"), nil)
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return userID, ok
}
