package tasks

// DefineTasks registers the handlers of every task the worker knows.
// A nil task is left unregistered; due rows for it are marked as failed.
func DefineTasks(reg *Registry, reconcile *ReconcilePendingTask, delivery *NotificationDelivery) {
	if reconcile != nil {
		reg.Register(reconcile.TaskID(), reconcile.HandleExecution)
	}
	if delivery != nil {
		reg.Register(delivery.TaskID(), delivery.HandleExecution)
	}
}
