package controllers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func answerRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ac := &AnswerController{}
	router.POST("/answers", ac.SaveHuman)
	return router
}

func postAnswer(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/answers", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestSaveHumanRejectsIncompletePayload(t *testing.T) {
	router := answerRouter()

	w := postAnswer(router, `{"question": "Employee ID of your referrer"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveHumanRejectsReservedTokens(t *testing.T) {
	router := answerRouter()

	w := postAnswer(router, `{
		"question": "Account password",
		"field_type": "password_input",
		"answer": "__CREDENTIAL_PASSWORD__"
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "literal value")
}
