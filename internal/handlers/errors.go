package handlers

import (
	"net/http"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/middleware"
)

// NotFoundHandler handles 404 errors.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, r, apperror.NotFound(apperror.CodeNotFound, "The requested resource was not found"))
}

// MethodNotAllowedHandler handles 405 errors.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, r, &apperror.Error{
		Kind:    apperror.KindValidation,
		Code:    apperror.CodeMethodNotAllowed,
		Message: "The requested method is not allowed for this resource",
		Status:  http.StatusMethodNotAllowed,
	})
}
