package core

import "github.com/gin-gonic/gin"

// respondError sends the unified error payload {"detail": message}.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}

// respondErr maps err through the error table before responding.
func respondErr(c *gin.Context, err error) {
	status, detail := statusForError(err)
	respondError(c, status, detail)
}
