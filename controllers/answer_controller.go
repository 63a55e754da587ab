package controllers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoapply/models"
	"autoapply/services"
	"autoapply/utils"
)

// AnswerController lets an operator feed answers back into the store after an
// attempt escalated with a question nothing could answer.
type AnswerController struct {
	answers *models.AnswerStoreModel
}

func NewAnswerController(db *sql.DB) *AnswerController {
	return &AnswerController{answers: models.NewAnswerStoreModel(db)}
}

type humanAnswerRequest struct {
	Question  string `json:"question" binding:"required"`
	FieldType string `json:"field_type" binding:"required"`
	Answer    string `json:"answer" binding:"required"`
}

// SaveHuman stores an operator-supplied answer keyed like every other cached
// answer, so the next application asking the same question reuses it.
func (ac *AnswerController) SaveHuman(c *gin.Context) {
	var req humanAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestError(c, "Invalid answer payload", err)
		return
	}
	if services.IsReservedToken(req.Answer) {
		utils.BadRequestError(c, "Answer must be a literal value", nil)
		return
	}

	if err := ac.answers.Save(req.Question, req.FieldType, req.Answer, services.SourceHuman); err != nil {
		utils.InternalServerError(c, "Failed to store answer", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Answer stored", gin.H{
		"question_hash": models.QuestionHash(req.Question),
		"field_type":    req.FieldType,
	})
}
