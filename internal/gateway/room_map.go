package gateway

import "sync"

// RoomMap tracks which local connections are subscribed to which rooms.
// Rooms are either a user's private room or a conversation room.
type RoomMap struct {
	mu          sync.RWMutex
	clients     map[string]*Client             // connId -> client
	rooms       map[string]map[string]*Client  // room -> connId -> client
	clientRooms map[string]map[string]struct{} // connId -> set of rooms
}

// NewRoomMap creates a new RoomMap
func NewRoomMap() *RoomMap {
	return &RoomMap{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		clientRooms: make(map[string]map[string]struct{}),
	}
}

// Attach makes the client eligible for joins
func (m *RoomMap) Attach(client *Client) {
	m.mu.Lock()
	m.clients[client.ConnId] = client
	if m.clientRooms[client.ConnId] == nil {
		m.clientRooms[client.ConnId] = make(map[string]struct{})
	}
	m.mu.Unlock()
}

// Detach removes the client from every room it joined
func (m *RoomMap) Detach(client *Client) {
	m.mu.Lock()
	delete(m.clients, client.ConnId)
	for room := range m.clientRooms[client.ConnId] {
		m.leaveLocked(room, client.ConnId)
	}
	delete(m.clientRooms, client.ConnId)
	m.mu.Unlock()
}

// Join adds the client to room. Detached clients are ignored.
func (m *RoomMap) Join(room string, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client.ConnId]; !ok {
		return false
	}
	members := m.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		m.rooms[room] = members
	}
	members[client.ConnId] = client

	memberships := m.clientRooms[client.ConnId]
	if memberships == nil {
		memberships = make(map[string]struct{})
		m.clientRooms[client.ConnId] = memberships
	}
	memberships[room] = struct{}{}
	return true
}

// JoinMany adds the client to several rooms at once
func (m *RoomMap) JoinMany(rooms []string, client *Client) {
	for _, room := range rooms {
		m.Join(room, client)
	}
}

// Leave removes the client from room
func (m *RoomMap) Leave(room string, client *Client) {
	m.mu.Lock()
	m.leaveLocked(room, client.ConnId)
	m.mu.Unlock()
}

// InRoom reports whether the client has joined room
func (m *RoomMap) InRoom(room string, client *Client) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][client.ConnId]
	return ok
}

// Members returns a snapshot of the clients in room
func (m *RoomMap) Members(room string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[room]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	return clients
}

// Rooms returns the rooms the client has joined
func (m *RoomMap) Rooms(client *Client) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]string, 0, len(m.clientRooms[client.ConnId]))
	for room := range m.clientRooms[client.ConnId] {
		rooms = append(rooms, room)
	}
	return rooms
}

// RoomCount returns the number of non-empty rooms
func (m *RoomMap) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *RoomMap) leaveLocked(room, connId string) {
	members := m.rooms[room]
	if members == nil {
		return
	}
	delete(members, connId)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	if memberships, ok := m.clientRooms[connId]; ok {
		delete(memberships, room)
	}
}
