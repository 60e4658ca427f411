// Package httputil holds the JSON response and request helpers shared by
// the API and tracking handlers. Every error body is an ErrorResponse;
// validation failures carry their field errors in "details".
package httputil
