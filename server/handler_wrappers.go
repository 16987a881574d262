package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gantry/gantry/models"
)

type applicationHandlerFunc func(http.ResponseWriter, *http.Request, *models.Application)

// applicationScoped resolves the {application} route variable and hands the
// configured application to the wrapped handler.
func applicationScoped(fn applicationHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		application := config.FindApplication(vars["application"])
		if application == nil {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}

		fn(w, r, application)
	}
}

// requireToken guards mutating endpoints with the shared API token. The
// token is taken from the X-Api-Token header or, for clients that cannot
// set headers, from the token parameter.
func requireToken(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Api-Token")
		if token == "" {
			token = r.FormValue("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(config.ApiToken)) != 1 {
			http.Error(w, "wrong API token", http.StatusUnauthorized)
			return
		}

		fn(w, r)
	}
}
