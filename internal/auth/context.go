package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxFirebaseUID = "firebase_uid"
	CtxEmail       = "email"
)

// DemoUser is the uid assigned when auth is not configured.
const DemoUser = "demo-user"

// UserFirebaseUID extracts the Firebase UID from the Gin context
// This is set by FirebaseAuthMiddleware or OptionalUser
func UserFirebaseUID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxFirebaseUID))
}
