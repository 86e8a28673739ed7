package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

func identity(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString("user_id"))
}

func roomParam(c *gin.Context) domain.RoomID {
	return domain.RoomID(c.Param("room"))
}

type createRoomRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

type roomView struct {
	domain.Room
	OnlineCount int `json:"online_count"`
}

func (h *Handlers) ListRooms(c *gin.Context) {
	rooms, err := h.Store.Rooms(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	out := lo.Map(rooms, func(r domain.Room, _ int) roomView {
		return roomView{Room: r, OnlineCount: len(h.Orch.Rooms.MembersOf(r.ID))}
	})
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	r, err := h.Orch.CreateRoom(c.Request.Context(), req.Name, identity(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handlers) GetRoom(c *gin.Context) {
	r, err := h.Store.Room(c.Request.Context(), roomParam(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, roomView{Room: *r, OnlineCount: len(h.Orch.Rooms.MembersOf(r.ID))})
}

func (h *Handlers) DeleteRoom(c *gin.Context) {
	if err := h.Orch.DeleteRoom(c.Request.Context(), roomParam(c), identity(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "room deleted"})
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	if err := h.Orch.JoinRoom(c.Request.Context(), roomParam(c), identity(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

func (h *Handlers) LeaveRoom(c *gin.Context) {
	if err := h.Orch.LeaveRoom(c.Request.Context(), roomParam(c), identity(c)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

type memberView struct {
	domain.Membership
	Online bool `json:"online"`
}

// ListMembers returns the durable roster with a live-connection flag;
// members only.
func (h *Handlers) ListMembers(c *gin.Context) {
	ctx := c.Request.Context()
	room := roomParam(c)
	ok, err := h.Store.IsMember(ctx, room, identity(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if !ok {
		abortWith(c, core.ErrNotAMember)
		return
	}
	members, err := h.Store.Members(ctx, room)
	if err != nil {
		abortWith(c, err)
		return
	}
	online := lo.SliceToMap(h.Orch.Rooms.MembersOf(room), func(u domain.UserID) (domain.UserID, struct{}) {
		return u, struct{}{}
	})
	out := lo.Map(members, func(m domain.Membership, _ int) memberView {
		_, isOnline := online[m.User]
		return memberView{Membership: m, Online: isOnline}
	})
	c.JSON(http.StatusOK, out)
}

// ListTypers is a diagnostics read of the presence tracker.
func (h *Handlers) ListTypers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"typing": h.Orch.ActiveTypers(roomParam(c))})
}
