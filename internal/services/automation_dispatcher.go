package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/automation"
	"kanbo/internal/automation/handlers"
	"kanbo/internal/events"
	"kanbo/internal/metrics"
	"kanbo/internal/models"
	"kanbo/internal/queue"
)

// triggerKindByEvent maps bus event names to registered trigger kinds.
var triggerKindByEvent = map[string]string{
	events.CardCreated:  handlers.TriggerCardCreated,
	events.CardMoved:    handlers.TriggerCardMoved,
	events.FieldUpdated: handlers.TriggerFieldUpdated,
	events.CardAssigned: handlers.TriggerCardAssigned,
}

// AutomationDispatcher bridges domain events to the execution queue. It
// runs inline in the request path that produced the event, so it only
// decides and enqueues; every stage may short-circuit to a logged skip.
// Actual execution happens later, on the worker.
type AutomationDispatcher struct {
	db          *gorm.DB
	logger      *logrus.Logger
	automations *AutomationService
	validation  *ValidationService
	registry    *automation.Registry
	queue       *queue.Queue
}

func NewAutomationDispatcher(db *gorm.DB, logger *logrus.Logger, automations *AutomationService, validation *ValidationService, registry *automation.Registry, q *queue.Queue) *AutomationDispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationDispatcher{
		db:          db,
		logger:      logger,
		automations: automations,
		validation:  validation,
		registry:    registry,
		queue:       q,
	}
}

// Register subscribes the dispatcher to every card event on the bus.
func (d *AutomationDispatcher) Register(bus *events.Bus) {
	bus.Subscribe("card.*", d.HandleEvent)
}

// HandleEvent evaluates every automation scoped to the event's list/space.
// One misbehaving automation never prevents its siblings from being
// enqueued, and nothing here propagates to the triggering request.
func (d *AutomationDispatcher) HandleEvent(ctx context.Context, evt events.Event) {
	metrics.IncDispatched()

	triggerKind, ok := triggerKindByEvent[evt.Type]
	if !ok {
		return
	}

	var card models.Card
	if err := d.db.WithContext(ctx).First(&card, "id = ?", evt.CardID).Error; err != nil {
		d.logger.Warnf("automation: event %s: load card %s: %v", evt.Type, evt.CardID, err)
		return
	}
	var list models.List
	if err := d.db.WithContext(ctx).First(&list, "id = ?", card.ListID).Error; err != nil {
		d.logger.Warnf("automation: event %s: load list %s: %v", evt.Type, card.ListID, err)
		return
	}

	candidates, err := d.automations.FindAllInListsAndSpaces(ctx, triggerKind,
		[]uuid.UUID{list.ID}, []uuid.UUID{list.SpaceID})
	if err != nil {
		d.logger.Warnf("automation: event %s: match query: %v", evt.Type, err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	for i := range candidates {
		d.evaluateOne(ctx, candidates[i].ID, evt)
	}
}

// evaluateOne runs the validation gate and the trigger handler's own
// condition check for one candidate, then enqueues it. Failures are logged
// skips, never raised.
func (d *AutomationDispatcher) evaluateOne(ctx context.Context, automationID uuid.UUID, evt events.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncSkipped()
			d.logger.Errorf("automation %s: panic during dispatch: %v", automationID, r)
		}
	}()

	if res := d.validation.ValidateAutomationBeforeRun(ctx, automationID); !res.IsValid {
		metrics.IncSkipped()
		d.logger.Infof("automation %s skipped: %s", automationID, res.Message)
		return
	}

	fire, err := d.shouldRunAutomation(ctx, automationID, evt)
	if err != nil {
		metrics.IncSkipped()
		d.logger.Warnf("automation %s: trigger check failed: %v", automationID, err)
		return
	}
	if !fire {
		metrics.IncSkipped()
		return
	}

	job := &models.AutomationJob{
		AutomationID: automationID,
		CardID:       evt.CardID,
		Payload:      automation.EncodeData(evt.Payload),
	}
	if err := d.queue.Enqueue(ctx, nil, job); err != nil {
		metrics.IncSkipped()
		d.logger.Warnf("automation %s: enqueue failed: %v", automationID, err)
		return
	}
	metrics.IncEnqueued()
	d.logger.Infof("automation %s enqueued for card %s (%s)", automationID, evt.CardID, evt.Type)
}

// shouldRunAutomation asks the trigger handler whether this event instance
// matches the automation's configured conditions. This is the fine-grained
// second stage after the coarse {trigger kind, location} match.
func (d *AutomationDispatcher) shouldRunAutomation(ctx context.Context, automationID uuid.UUID, evt events.Event) (bool, error) {
	am, err := d.automations.FindOne(ctx, automationID)
	if err != nil {
		return false, err
	}
	if am.TriggerStep == nil || am.TriggerStep.Value == nil {
		return false, nil
	}
	handler, ok := d.registry.Trigger(*am.TriggerStep.Value)
	if !ok {
		return false, nil
	}
	return handler.Execute(ctx, evt, am, am.TriggerStep)
}
